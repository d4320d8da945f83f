package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
)

// Service implements interfaces.EventService with an in-memory pub/sub
// registry. Publish fans out to subscribers on their own goroutines so
// that publishing never blocks the caller on subscriber work; PublishSync
// waits for every handler before returning, used by tests and by callers
// that need delivery ordering guarantees.
type Service struct {
	mu          sync.RWMutex
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	logger      arbor.ILogger
}

// NewService creates an event bus and subscribes a logging handler to
// every known event type.
func NewService(logger arbor.ILogger) interfaces.EventService {
	s := &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}

	if err := SubscribeLoggerToAllEvents(s, logger); err != nil {
		logger.Warn().Err(err).Msg("failed to attach logger subscriber to event bus")
	}

	return s
}

// Subscribe registers a handler for an event type.
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("event handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("event handler subscribed")

	return nil
}

// Unsubscribe removes the first handler registered for eventType. Handler
// identity is compared by function pointer, matching how callers capture
// the value returned from a subscription-constructing helper.
func (s *Service) Unsubscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handlers := s.subscribers[eventType]
	for i := range handlers {
		if fmt.Sprintf("%p", handlers[i]) == fmt.Sprintf("%p", handler) {
			s.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("handler not found for event type: %s", eventType)
}

// Publish fans the event out to every subscriber on its own
// panic-protected goroutine and returns immediately.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	handlers := append([]interfaces.EventHandler(nil), s.subscribers[event.Type]...)
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	for _, h := range handlers {
		go s.dispatch(ctx, event, h)
	}

	return nil
}

// PublishSync runs every subscriber and waits for them all to finish,
// returning a combined error if any handler failed.
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	handlers := append([]interfaces.EventHandler(nil), s.subscribers[event.Type]...)
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for _, h := range handlers {
		wg.Add(1)
		go func(handler interfaces.EventHandler) {
			defer wg.Done()
			if err := s.runHandler(ctx, event, handler); err != nil {
				errCh <- err
			}
		}(h)
	}

	wg.Wait()
	close(errCh)

	var failed int
	for err := range errCh {
		failed++
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("event handler failed")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d event handlers failed for %s", failed, len(handlers), event.Type)
	}

	return nil
}

// Close clears all subscriptions. The bus remains usable afterward.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.logger.Info().Msg("event bus closed")

	return nil
}

func (s *Service) dispatch(ctx context.Context, event interfaces.Event, handler interfaces.EventHandler) {
	if err := s.runHandler(ctx, event, handler); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("event handler failed")
	}
}

func (s *Service) runHandler(ctx context.Context, event interfaces.Event, handler interfaces.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in event handler for %s: %v", event.Type, r)
		}
	}()
	return handler(ctx, event)
}
