package domain

import (
	"context"

	"slotwatch/internal/models"
)

// Store is the persistent key-value collaborator the queue lives in.
// Implementations must be durable across restarts; Watch callbacks fire
// in-process after a successful Set on the watched key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Watch(key string, fn func(newValue, oldValue []byte))
	Close() error
}

// PortalClient issues the external HTTP calls against the logistics
// portal. Failures are normalized into *portal.Error values rather than
// free-form errors wherever a response was obtained.
type PortalClient interface {
	// FetchSlots returns the raw slot-availability page for a calendar
	// date in "DD.MM.YYYY" form.
	FetchSlots(ctx context.Context, date string) (string, error)
	// FetchEditForm returns the edit-form HTML for a booking, used to
	// extract driver name and container number.
	FetchEditForm(ctx context.Context, tvAppID string) (string, error)
	// SubmitBooking resubmits the cached form payload to the item's
	// submission endpoint and returns the raw response text.
	SubmitBooking(ctx context.Context, url string, body models.SubmitBody) (string, error)
}

// AuthProvider is the session oracle; the engine only ever asks whether
// the portal session is currently valid and who owns it.
type AuthProvider interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) string
}

// Notifier delivers a best-effort success notification. Implementations
// must never block the caller for long and must swallow their own
// transport failures into the returned error only.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
	Name() string
}

// NotificationDispatcher fans a success notification out to every
// configured sink. Sink failures are independent and never propagate.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n models.Notification)
}

// Indicator is the OS-level badge collaborator: a short text glyph on an
// action icon.
type Indicator interface {
	SetText(text string) error
	Clear() error
}

// EventPublisher mirrors the observer callbacks of the queue manager.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// QueueService is the surface exposed to the admin API.
type QueueService interface {
	Add(ctx context.Context, item models.RetryItem) ([]models.RetryItem, error)
	Remove(ctx context.Context, id string) error
	RemoveMany(ctx context.Context, ids []string) error
	RemoveGroup(ctx context.Context, tvAppID string) error
	Update(ctx context.Context, id string, patch models.ItemPatch) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]models.RetryItem, error)
	ReplaceAll(ctx context.Context, queue []models.RetryItem) error
	Statistics(ctx context.Context) (models.QueueStatistics, error)
	StartProcessing(opts models.ProcessingOptions) error
	StopProcessing()
	State() models.ProcessingState
}
