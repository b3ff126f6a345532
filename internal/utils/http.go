package utils

import (
	"fmt"
	"io"
	"log/slog"
)

// MaxResponseBodySize is the maximum response body size (10 MB) read from the
// service. Larger bodies are truncated by [ReadLimited].
const MaxResponseBodySize int64 = 10 * 1024 * 1024

// ReadLimited reads at most MaxResponseBodySize bytes from reader.
func ReadLimited(reader io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(reader, MaxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return body, nil
}

// CloseWithLog closes closer and logs, rather than returns, any close error.
// It is meant for deferred cleanup of response bodies where the primary error
// of the surrounding function must not be overridden.
func CloseWithLog(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err.Error())
	}
}
