// Package authwatch resurrects stalled requests once the portal session
// comes back. It watches the shared unauthorized flag and flips every
// authorization-error item back to in-progress on the true-to-false
// transition.
package authwatch

import (
	"context"
	"time"

	"slotwatch/internal/domain"
	"slotwatch/internal/models"

	"github.com/rs/zerolog"
)

// Handler subscribes to unauthorized-flag changes in the store.
type Handler struct {
	store   domain.Store
	queue   domain.QueueService
	logger  zerolog.Logger
	timeout time.Duration
}

func NewHandler(st domain.Store, queue domain.QueueService, logger zerolog.Logger) *Handler {
	return &Handler{
		store:   st,
		queue:   queue,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Start registers the watch. Callbacks fire on the mutating goroutine,
// so the restoration work itself runs detached.
func (h *Handler) Start() {
	h.store.Watch(models.UnauthorizedFlagKey, func(newValue, oldValue []byte) {
		// Только переход true -> false означает восстановление сессии.
		if string(oldValue) != "true" || string(newValue) != "false" {
			return
		}
		go h.restore()
	})
	h.logger.Debug().Str("key", models.UnauthorizedFlagKey).Msg("auth restoration watch registered")
}

func (h *Handler) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.Restore(ctx); err != nil {
		h.logger.Error().Err(err).Msg("auth restoration failed")
	}
}

// Restore requeues every item stranded in authorization-error. Each item
// is patched individually; a failure aborts the sweep so the next flag
// flip retries the remainder.
func (h *Handler) Restore(ctx context.Context) error {
	queue, err := h.queue.GetAll(ctx)
	if err != nil {
		return err
	}

	var restored int
	for _, item := range queue {
		if item.Status != models.StatusAuthError {
			continue
		}
		patch := models.StatusPatch(models.StatusInProgress, models.MsgInProgress)
		if err := h.queue.Update(ctx, item.ID, patch); err != nil {
			return err
		}
		restored++
	}

	if restored > 0 {
		h.logger.Info().Int("restored", restored).Msg("session restored, stalled items requeued")
	}
	return nil
}
