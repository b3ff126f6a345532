package resources

import "iter"

// Stream is a sequence of typed response chunks. It must be consumed, by
// ranging over Iter (breaking early is fine) or by Collect, to release the
// underlying HTTP body.
type Stream[T any] struct {
	seq   iter.Seq2[*T, error]
	merge func(acc, chunk *T)
}

// ChatStream streams chat and completion replies.
type ChatStream = Stream[ChatResponse]

func newStream[T any](seq iter.Seq2[*T, error], merge func(acc, chunk *T)) *Stream[T] {
	return &Stream[T]{seq: seq, merge: merge}
}

// Iter returns the chunk sequence. An error ends it.
func (s *Stream[T]) Iter() iter.Seq2[*T, error] {
	return s.seq
}

// Collect drains the stream into one response. On a mid-stream error it
// returns what was merged so far together with the error.
func (s *Stream[T]) Collect() (*T, error) {
	var acc *T
	for chunk, err := range s.seq {
		if err != nil {
			return acc, err
		}
		if acc == nil {
			c := *chunk
			acc = &c
			continue
		}
		s.merge(acc, chunk)
	}
	if acc == nil {
		acc = new(T)
	}
	return acc, nil
}

// mergeChat appends the chunk text and keeps the latest metadata.
func mergeChat(acc, chunk *ChatResponse) {
	acc.Result += chunk.Result
	acc.SentenceID = chunk.SentenceID
	acc.IsEnd = chunk.IsEnd
	acc.IsTruncated = chunk.IsTruncated
	acc.NeedClearHistory = acc.NeedClearHistory || chunk.NeedClearHistory
	acc.FinishReason = chunk.FinishReason
	acc.Usage = chunk.Usage
	acc.Meta = chunk.Meta
	if chunk.FunctionCall != nil {
		acc.FunctionCall = chunk.FunctionCall
	}
}
