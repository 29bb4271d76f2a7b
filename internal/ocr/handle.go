package ocr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Factory builds an Engine. It may fail transiently.
type Factory func(ctx context.Context) (Engine, error)

// Handle owns the recognition engine. The engine is built on the first Get
// and shared afterwards. Construction is retried with a fixed backoff.
type Handle struct {
	mu       sync.Mutex
	factory  Factory
	engine   Engine
	attempts int
	backoff  time.Duration
}

func NewHandle(factory Factory, attempts int, backoff time.Duration) *Handle {
	if attempts < 1 {
		attempts = 1
	}
	return &Handle{factory: factory, attempts: attempts, backoff: backoff}
}

func (h *Handle) Get(ctx context.Context) (Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine != nil {
		return h.engine, nil
	}

	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		engine, err := h.factory(ctx)
		if err == nil {
			h.engine = engine
			log.Info().Int("attempt", attempt).Msg("OCR engine initialized")
			return engine, nil
		}
		lastErr = err
		if attempt == h.attempts {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", h.backoff).Msg("OCR engine initialization failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.backoff):
		}
	}

	log.Error().Err(lastErr).Int("attempts", h.attempts).Msg("Failed to initialize OCR engine")
	return nil, fmt.Errorf("failed to initialize OCR engine after %d attempts: %w", h.attempts, lastErr)
}
