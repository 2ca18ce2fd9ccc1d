package ai

import (
	"context"
	"fmt"
)

// DefaultStreamBuffer is the fragment channel capacity used when a
// configuration does not set one.
const DefaultStreamBuffer = 64

// Pump bridges a blocking, callback-driven provider call into a fragment
// channel. produce runs on its own goroutine and calls emit once per
// fragment in provider order; emit returns an error once ctx is done so the
// provider can abort. The channel is closed after produce returns. A
// produce error is delivered as a final fragment wrapping
// ErrGenerationFailed, unless the caller already cancelled.
func Pump(ctx context.Context, buffer int, produce func(ctx context.Context, emit func(string) error) error) <-chan Fragment {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	out := make(chan Fragment, buffer)

	go func() {
		defer close(out)

		emit := func(text string) error {
			if text == "" {
				return nil
			}
			select {
			case out <- Fragment{Text: text}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := produce(ctx, emit)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case out <- Fragment{Err: fmt.Errorf("%w: %w", ErrGenerationFailed, err)}:
		case <-ctx.Done():
		}
	}()

	return out
}

// Collect drains a fragment stream into a single string. It returns the
// text received so far together with the stream's error, if any.
func Collect(stream <-chan Fragment) (string, error) {
	var text []byte
	for frag := range stream {
		if frag.Err != nil {
			return string(text), frag.Err
		}
		text = append(text, frag.Text...)
	}
	return string(text), nil
}
