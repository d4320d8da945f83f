package events

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
)

func TestServicePublishSyncDeliversToSubscriber(t *testing.T) {
	logger := arbor.NewLogger()
	bus := NewService(logger)
	defer bus.Close()

	received := make(chan interfaces.Event, 1)
	err := bus.Subscribe(interfaces.EventJobCreated, func(_ context.Context, event interfaces.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event := interfaces.Event{
		Type:    interfaces.EventJobCreated,
		Payload: map[string]interface{}{"job_id": "job-1"},
	}

	if err := bus.PublishSync(context.Background(), event); err != nil {
		t.Fatalf("publish sync failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != interfaces.EventJobCreated {
			t.Errorf("expected EventJobCreated, got %s", got.Type)
		}
	default:
		t.Fatal("expected handler to have run synchronously")
	}
}

func TestServicePublishSyncReportsHandlerPanic(t *testing.T) {
	logger := arbor.NewLogger()
	bus := NewService(logger)
	defer bus.Close()

	err := bus.Subscribe(interfaces.EventJobFinalized, func(_ context.Context, _ interfaces.Event) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	err = bus.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobFinalized})
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
}

func TestServicePublishWithoutCustomSubscribersReturnsNil(t *testing.T) {
	logger := arbor.NewLogger()
	bus := NewService(logger)
	defer bus.Close()

	if err := bus.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobDeleted}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestServiceSubscribeRejectsNilHandler(t *testing.T) {
	logger := arbor.NewLogger()
	bus := NewService(logger)
	defer bus.Close()

	if err := bus.Subscribe(interfaces.EventJobCreated, nil); err == nil {
		t.Fatal("expected error subscribing nil handler")
	}
}

func TestServiceCloseClearsSubscribers(t *testing.T) {
	logger := arbor.NewLogger()
	bus := NewService(logger)

	called := false
	_ = bus.Subscribe(interfaces.EventJobCreated, func(_ context.Context, _ interfaces.Event) error {
		called = true
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	_ = bus.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobCreated})
	if called {
		t.Error("expected no handler invocation after Close")
	}
}
