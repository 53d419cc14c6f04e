package notify

import (
	"context"
	"encoding/json"
	"sync"

	"slotwatch/internal/domain"
	"slotwatch/internal/models"

	"github.com/rs/zerolog"
)

// Dispatcher fans one notification out to every active sink in
// parallel and waits for all of them. Per-sink failures are logged and
// never propagate to the caller.
type Dispatcher struct {
	store  domain.Store
	sinks  []domain.Notifier
	logger zerolog.Logger
}

func NewDispatcher(st domain.Store, logger zerolog.Logger, sinks ...domain.Notifier) *Dispatcher {
	return &Dispatcher{store: st, sinks: sinks, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) {
	settings := d.settings(ctx)

	var wg sync.WaitGroup
	for _, sink := range d.sinks {
		sink = applySettings(sink, settings)
		if sink == nil {
			continue
		}
		wg.Add(1)
		go func(sink domain.Notifier) {
			defer wg.Done()
			if err := sink.Notify(ctx, n); err != nil {
				d.logger.Warn().Err(err).Str("sink", sink.Name()).Str("tvAppId", n.TvAppID).Msg("notification delivery failed")
				return
			}
			d.logger.Debug().Str("sink", sink.Name()).Str("tvAppId", n.TvAppID).Msg("notification delivered")
		}(sink)
	}
	wg.Wait()
}

// settings loads the stored user preferences; nil means no preferences
// were ever saved and every configured sink fires.
func (d *Dispatcher) settings(ctx context.Context) *models.NotificationSettings {
	raw, err := d.store.Get(ctx, models.NotificationSettingsKey)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to load notification settings, using configured sinks")
		return nil
	}
	if raw == nil {
		return nil
	}

	var s models.NotificationSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		d.logger.Warn().Err(err).Msg("malformed notification settings, using configured sinks")
		return nil
	}
	return &s
}

// applySettings filters and retargets a sink according to the user
// preferences. A nil result disables the sink for this dispatch.
func applySettings(sink domain.Notifier, s *models.NotificationSettings) domain.Notifier {
	if s == nil {
		return sink
	}

	switch v := sink.(type) {
	case *DesktopNotifier:
		if !s.DesktopEnabled {
			return nil
		}
		return v
	case *EmailNotifier:
		if !s.EmailEnabled {
			return nil
		}
		if s.Email != "" {
			return v.WithRecipient(s.Email)
		}
		return v
	case *TelegramNotifier:
		if !s.TelegramEnabled {
			return nil
		}
		if s.TelegramChatID != 0 {
			return v.WithChat(s.TelegramChatID)
		}
		return v
	default:
		return sink
	}
}
