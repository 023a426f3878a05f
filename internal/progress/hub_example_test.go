package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sink)

	hub.Emit(Event{
		Type:      TypeProgress,
		RequestID: "00000000-0000-0000-0000-000000000001",
		TS:        time.Unix(0, 0),
		Payload:   &ProgressPayload{URL: "https://example.com/", Total: 1, State: StateCapturing},
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleHub_Subscribe streams a request's events to a live subscriber.
func ExampleHub_Subscribe() {
	hub := NewHub(Config{})
	sub, err := hub.Subscribe()
	if err != nil {
		panic(err)
	}

	stream := NewRequestStream(hub, exampleClock{}, "req-42")
	stream.Progress("https://example.com/", 0, 1)
	stream.Result(capture.Result{URL: "https://example.com/", Status: capture.StatusSuccess})

	for range 2 {
		evt := <-sub.Events()
		fmt.Printf("%d %s\n", evt.Sequence, evt.Type)
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}
	// Output:
	// 1 progress
	// 2 result
}

// ExampleSink implements a custom Sink that tallies failed results.
func ExampleSink() {
	failed := 0
	counter := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if r, ok := evt.Payload.(*capture.Result); ok && r.Status == capture.StatusFailed {
				failed++
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, counter)

	hub.Emit(Event{
		Type:      TypeResult,
		RequestID: "req-7",
		TS:        time.Unix(0, 0),
		Payload:   &capture.Result{URL: "https://example.com/", Status: capture.StatusFailed},
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("failed results: %d\n", failed)
	// Output:
	// failed results: 1
}

type exampleClock struct{}

func (exampleClock) Now() time.Time { return time.Unix(0, 0).UTC() }

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
