// Package queue owns the durable list of booking-change requests and the
// loop that retries them against the portal.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"slotwatch/internal/badge"
	"slotwatch/internal/domain"
	"slotwatch/internal/events"
	"slotwatch/internal/models"
	"slotwatch/internal/timeslot"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidItem означает, что заявка не прошла валидацию обязательных полей
	ErrInvalidItem = errors.New("queue item is missing required fields")

	// ErrDuplicateItem нарушение уникальности (tvAppId, startSlot)
	ErrDuplicateItem = errors.New("queue item duplicates an existing request")

	// ErrOrphanSuccess запись success без существующей заявки с тем же tvAppId
	ErrOrphanSuccess = errors.New("success item requires an existing item with the same tvAppId")
)

// Manager is the queue engine. All read-modify-write sequences against
// the backing store run under mu; the processing loop, user actions and
// the auth-restoration handler all funnel through it.
type Manager struct {
	store      domain.Store
	portal     domain.PortalClient
	auth       domain.AuthProvider
	badge      *badge.Aggregator
	dispatcher domain.NotificationDispatcher
	bus        domain.EventPublisher
	logger     zerolog.Logger
	queueKey   string

	mu sync.Mutex

	procMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	opts    models.ProcessingOptions
	state   models.ProcessingState
	stateMu sync.Mutex

	// now is swappable in tests
	now func() time.Time
}

func NewManager(
	store domain.Store,
	portalClient domain.PortalClient,
	auth domain.AuthProvider,
	agg *badge.Aggregator,
	dispatcher domain.NotificationDispatcher,
	bus domain.EventPublisher,
	queueKey string,
	logger zerolog.Logger,
) *Manager {
	if queueKey == "" {
		queueKey = models.QueueStorageKey
	}
	return &Manager{
		store:      store,
		portal:     portalClient,
		auth:       auth,
		badge:      agg,
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger,
		queueKey:   queueKey,
		now:        time.Now,
	}
}

// loadLocked reads the whole queue; callers hold mu.
func (m *Manager) loadLocked(ctx context.Context) ([]models.RetryItem, error) {
	raw, err := m.store.Get(ctx, m.queueKey)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if raw == nil {
		return []models.RetryItem{}, nil
	}

	var queue []models.RetryItem
	if err := json.Unmarshal(raw, &queue); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	if queue == nil {
		queue = []models.RetryItem{}
	}
	return queue, nil
}

// persistLocked writes the whole queue back; callers hold mu.
func (m *Manager) persistLocked(ctx context.Context, queue []models.RetryItem) error {
	raw, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := m.store.Set(ctx, m.queueKey, raw); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

// Add validates and appends an item. A rejected item leaves the queue
// untouched; the unchanged queue is returned alongside a typed error.
func (m *Manager) Add(ctx context.Context, item models.RetryItem) ([]models.RetryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, err := m.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	if !item.Valid() {
		m.logger.Warn().Str("tvAppId", item.TvAppID).Msg("rejecting invalid queue item")
		return queue, ErrInvalidItem
	}

	for i := range queue {
		if queue[i].SameRequest(&item) {
			m.logger.Debug().
				Str("tvAppId", item.TvAppID).
				Str("startSlot", item.StartSlot).
				Msg("duplicate request ignored")
			return queue, ErrDuplicateItem
		}
	}

	if item.Status == models.StatusSuccess {
		found := false
		for i := range queue {
			if queue[i].TvAppID == item.TvAppID {
				found = true
				break
			}
		}
		if !found {
			return queue, ErrOrphanSuccess
		}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = m.now()
	}

	// Ранняя проверка поля слота, чтобы проблема была видна сразу,
	// а не только в момент диспетчеризации.
	if _, err := timeslot.DatePart(item.Body.Slot()); err != nil {
		m.logger.Warn().
			Str("tvAppId", item.TvAppID).
			Err(err).
			Msg("item body has an unparsable slot field, it will be skipped by dispatch")
	}

	queue = append(queue, item)
	if err := m.persistLocked(ctx, queue); err != nil {
		return nil, err
	}

	_ = m.bus.PublishJSON(events.EventItemAdded, events.ItemEventPayload{
		ID:        item.ID,
		TvAppID:   item.TvAppID,
		StartSlot: item.StartSlot,
		Status:    item.Status,
	})

	return queue, nil
}

// Remove drops a single item by id.
func (m *Manager) Remove(ctx context.Context, id string) error {
	return m.RemoveMany(ctx, []string{id})
}

// RemoveMany drops every matching id, firing one removal event per
// dropped item.
func (m *Manager) RemoveMany(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, err := m.loadLocked(ctx)
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := queue[:0]
	var removed []models.RetryItem
	for _, item := range queue {
		if drop[item.ID] {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}

	if err := m.persistLocked(ctx, kept); err != nil {
		return err
	}

	for _, item := range removed {
		_ = m.bus.PublishJSON(events.EventItemRemoved, events.ItemEventPayload{
			ID:      item.ID,
			TvAppID: item.TvAppID,
		})
	}
	return nil
}

// RemoveGroup drops every item sharing a tvAppId.
func (m *Manager) RemoveGroup(ctx context.Context, tvAppID string) error {
	m.mu.Lock()
	queue, err := m.loadLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	var ids []string
	for _, item := range queue {
		if item.TvAppID == tvAppID {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return m.RemoveMany(ctx, ids)
}

// Update shallow-merges a patch into the matching item. When the id is
// unknown the queue is persisted unchanged and no event fires.
func (m *Manager) Update(ctx context.Context, id string, patch models.ItemPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, err := m.loadLocked(ctx)
	if err != nil {
		return err
	}

	var updated *models.RetryItem
	for i := range queue {
		if queue[i].ID == id {
			patch.Apply(&queue[i])
			updated = &queue[i]
			break
		}
	}

	if err := m.persistLocked(ctx, queue); err != nil {
		return err
	}

	if updated != nil {
		_ = m.bus.PublishJSON(events.EventItemUpdated, events.ItemEventPayload{
			ID:            updated.ID,
			TvAppID:       updated.TvAppID,
			Status:        updated.Status,
			StatusMessage: updated.StatusMessage,
		})
	}
	return nil
}

// GetAll returns the full queue, empty when nothing is stored yet.
func (m *Manager) GetAll(ctx context.Context) ([]models.RetryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

// ReplaceAll swaps the entire queue; used for bulk reconciliation.
func (m *Manager) ReplaceAll(ctx context.Context, queue []models.RetryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked(ctx, queue)
}

// Pause flips an in-progress item to paused.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.Update(ctx, id, models.StatusPatch(models.StatusPaused, models.MsgPaused))
}

// Resume flips a paused item back to in-progress.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.Update(ctx, id, models.StatusPatch(models.StatusInProgress, models.MsgInProgress))
}

// Statistics aggregates per-status counts plus the average elapsed time
// of terminally resolved items.
func (m *Manager) Statistics(ctx context.Context) (models.QueueStatistics, error) {
	queue, err := m.GetAll(ctx)
	if err != nil {
		return models.QueueStatistics{}, err
	}

	stats := models.QueueStatistics{
		Total:    len(queue),
		ByStatus: make(map[string]int),
	}

	var terminal int
	var elapsed time.Duration
	now := m.now()
	for _, item := range queue {
		stats.ByStatus[item.Status]++
		if item.Status == models.StatusSuccess || item.Status == models.StatusError {
			terminal++
			elapsed += now.Sub(item.Timestamp)
		}
	}
	if terminal > 0 {
		stats.AverageElapsed = elapsed / time.Duration(terminal)
	}

	return stats, nil
}

// State returns a copy of the in-memory processing state.
func (m *Manager) State() models.ProcessingState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Manager) setUnauthorizedFlag(ctx context.Context, unauthorized bool) {
	val := []byte("false")
	if unauthorized {
		val = []byte("true")
	}
	if err := m.store.Set(ctx, models.UnauthorizedFlagKey, val); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist unauthorized flag")
	}
}
