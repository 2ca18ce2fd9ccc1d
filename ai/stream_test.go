package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPump_PreservesOrder(t *testing.T) {
	stream := Pump(context.Background(), 2, func(ctx context.Context, emit func(string) error) error {
		for _, s := range []string{"a", "b", "", "c", "d"} {
			if err := emit(s); err != nil {
				return err
			}
		}
		return nil
	})

	var got []string
	for frag := range stream {
		require.NoError(t, frag.Err)
		got = append(got, frag.Text)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got, "empty fragments are dropped")
}

func TestPump_ErrorIsLastFragment(t *testing.T) {
	boom := errors.New("boom")
	stream := Pump(context.Background(), 0, func(ctx context.Context, emit func(string) error) error {
		_ = emit("partial")
		return boom
	})

	text, err := Collect(stream)
	assert.Equal(t, "partial", text)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, boom)
}

func TestPump_CancelStopsProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)

	stream := Pump(ctx, 1, func(ctx context.Context, emit func(string) error) error {
		for {
			if err := emit("x"); err != nil {
				finished <- err
				return err
			}
		}
	})

	<-stream
	cancel()

	select {
	case err := <-finished:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer kept running after cancel")
	}

	// the channel still closes; any buffered fragment may be drained first
	for frag := range stream {
		assert.NoError(t, frag.Err, "no error fragment after caller cancellation")
	}
}
