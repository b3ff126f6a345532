package requestor

import (
	"encoding/json"
	"iter"
	"maps"
	"net/http"
	"net/url"
	"time"
)

// Request is one call to the service. URL is absolute; Query is merged into
// it before authentication.
type Request struct {
	Method   string
	URL      string
	Headers  http.Header
	Query    url.Values
	JSONBody map[string]any

	// Resource, Model and Endpoint label spans, logs and metrics.
	Resource string
	Model    string
	Endpoint string

	// Per-call overrides read by the retry and timeout middleware. Zero
	// values (nil for BackoffFactor) keep the configured defaults.
	RetryCount    int
	Timeout       time.Duration
	BackoffFactor *float64
}

// Clone returns a copy whose headers, query and top-level body map can be
// modified without affecting r.
func (r *Request) Clone() *Request {
	c := *r
	c.Headers = r.Headers.Clone()
	if r.Query != nil {
		c.Query = url.Values(http.Header(r.Query).Clone())
	}
	if r.JSONBody != nil {
		c.JSONBody = maps.Clone(r.JSONBody)
	}
	return &c
}

// Statistic carries latency measurements of one response or stream chunk.
type Statistic struct {
	// RequestLatency is the HTTP round trip for a plain call; for a stream
	// chunk it is the time since the previous chunk (the first chunk uses
	// FirstTokenLatency).
	RequestLatency    time.Duration
	FirstTokenLatency time.Duration
	TotalLatency      time.Duration
	// StartTimestamp is when the call started, in Unix milliseconds.
	StartTimestamp int64
}

// Response is a decoded reply or stream chunk.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       map[string]any
	Raw        []byte
	Statistic  Statistic
	Request    *Request
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// Stream is a sequence of response chunks. Iterating it drives the HTTP
// body; breaking out of the loop closes it.
type Stream struct {
	seq iter.Seq2[*Response, error]
}

// NewStream wraps seq.
func NewStream(seq iter.Seq2[*Response, error]) *Stream {
	return &Stream{seq: seq}
}

// NewSingleResponseStream yields resp once.
func NewSingleResponseStream(resp *Response) *Stream {
	return NewStream(func(yield func(*Response, error) bool) {
		yield(resp, nil)
	})
}

// Iter returns the underlying sequence. An error ends the sequence.
func (s *Stream) Iter() iter.Seq2[*Response, error] {
	return s.seq
}

// Collect drains the stream into a slice, stopping at the first error.
func (s *Stream) Collect() ([]*Response, error) {
	var out []*Response
	for resp, err := range s.seq {
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}
