package queue

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"slotwatch/internal/events"
	"slotwatch/internal/metrics"
	"slotwatch/internal/models"
	"slotwatch/internal/portal"
	"slotwatch/internal/timeslot"
)

// StartProcessing launches the jittered retry loop. Calling it while the
// loop already runs is a logged no-op.
func (m *Manager) StartProcessing(opts models.ProcessingOptions) error {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	if m.cancel != nil {
		m.logger.Info().Msg("processing already running, start ignored")
		return nil
	}

	defaults := models.DefaultProcessingOptions()
	if opts.IntervalMin <= 0 {
		opts.IntervalMin = defaults.IntervalMin
	}
	if opts.IntervalMax < opts.IntervalMin {
		opts.IntervalMax = opts.IntervalMin
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.opts = opts

	m.stateMu.Lock()
	m.state.IsProcessing = true
	m.stateMu.Unlock()

	_ = m.bus.PublishJSON(events.EventProcessingStart, events.ProcessingEventPayload{
		IntervalMin: opts.IntervalMin,
		IntervalMax: opts.IntervalMax,
	})
	m.logger.Info().
		Dur("interval_min", opts.IntervalMin).
		Dur("interval_max", opts.IntervalMax).
		Int("batch_size", opts.BatchSize).
		Msg("processing started")

	go m.loop(ctx, done)
	return nil
}

// StopProcessing cancels the pending tick. In-flight portal calls of an
// already-started tick complete and their results are applied, but no
// further tick fires. Safe to call when idle.
func (m *Manager) StopProcessing() {
	m.procMu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.procMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}

	m.stateMu.Lock()
	m.state.IsProcessing = false
	m.stateMu.Unlock()

	_ = m.bus.PublishJSON(events.EventProcessingStop, events.ProcessingEventPayload{})
	m.logger.Info().Msg("processing stopped")
}

// loop runs ticks back to back with a uniformly-random delay between
// them. A tick fully completes before the next delay starts counting, so
// ticks never overlap.
func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.stateMu.Lock()
		m.state.IsProcessing = false
		m.stateMu.Unlock()

		// Self-termination (retry disabled) releases the running slot;
		// after StopProcessing the fields are already cleared.
		m.procMu.Lock()
		if m.done == done {
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
			}
			m.done = nil
		}
		m.procMu.Unlock()

		close(done)
	}()

	for {
		if !m.opts.RetryEnabled {
			m.logger.Info().Msg("retry disabled, loop exiting")
			return
		}

		m.tick(ctx)

		delay := m.jitter()
		m.stateMu.Lock()
		m.state.CurrentInterval = delay
		m.stateMu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// jitter picks a random delay in [IntervalMin, IntervalMax]. The spread
// keeps the polling signature unpredictable to the portal.
func (m *Manager) jitter() time.Duration {
	min, max := m.opts.IntervalMin, m.opts.IntervalMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

func (m *Manager) tick(ctx context.Context) {
	metrics.IncTick()

	if !m.auth.IsAuthenticated(ctx) {
		m.badge.Clear()
		m.logger.Debug().Msg("not authenticated, tick skipped")
		return
	}

	if err := m.runBatchPass(ctx); err != nil {
		m.stateMu.Lock()
		m.state.ErrorCount++
		m.stateMu.Unlock()
		metrics.IncProcessingError()
		_ = m.bus.PublishJSON(events.EventProcessingError, events.ProcessingEventPayload{Error: err.Error()})
		m.logger.Error().Err(err).Msg("batch pass failed")
	}
}

// runBatchPass executes one date-grouped dispatch over the current
// working set.
func (m *Manager) runBatchPass(ctx context.Context) error {
	started := m.now()

	queue, err := m.GetAll(ctx)
	if err != nil {
		return err
	}

	statuses := make([]string, 0, len(queue))
	for _, item := range queue {
		statuses = append(statuses, item.Status)
	}
	m.badge.Update(statuses)
	metrics.SetQueueLength(len(queue))

	working := make([]models.RetryItem, 0, m.opts.BatchSize)
	for _, item := range queue {
		if item.Status != models.StatusInProgress {
			continue
		}
		working = append(working, item)
		if len(working) == m.opts.BatchSize {
			break
		}
	}
	if len(working) == 0 {
		return nil
	}

	// Одна загрузка страницы слотов на дату, не на заявку.
	groups := make(map[string][]models.RetryItem)
	for _, item := range working {
		date, err := timeslot.DatePart(item.Body.Slot())
		if err != nil {
			m.logger.Warn().
				Str("id", item.ID).
				Str("tvAppId", item.TvAppID).
				Err(err).
				Msg("unparsable slot field, item skipped this tick")
			continue
		}
		groups[date] = append(groups[date], item)
	}

	var wg sync.WaitGroup
	for date, group := range groups {
		wg.Add(1)
		go func(date string, group []models.RetryItem) {
			defer wg.Done()
			m.processDateGroup(ctx, date, group)
		}(date, group)
	}
	wg.Wait()

	m.stateMu.Lock()
	m.state.LastProcessedAt = m.now()
	m.stateMu.Unlock()
	metrics.ObserveBatchDuration(m.now().Sub(started).Seconds())
	return nil
}

// processDateGroup fetches the shared slot page for one date and walks
// the group sequentially against it. A fetch failure resolves the whole
// group the same way.
func (m *Manager) processDateGroup(ctx context.Context, date string, group []models.RetryItem) {
	html, err := m.portal.FetchSlots(ctx, date)
	if err != nil {
		status, msg := portal.Classify(err)
		if portal.SetsUnauthorizedFlag(err) {
			m.setUnauthorizedFlag(ctx, true)
		}
		m.logger.Warn().Str("date", date).Str("status", status).Err(err).Msg("slot fetch failed for date group")

		for _, item := range group {
			if uerr := m.Update(ctx, item.ID, models.StatusPatch(status, msg)); uerr != nil {
				m.logger.Error().Err(uerr).Str("id", item.ID).Msg("failed to record fetch error status")
			}
			metrics.IncProcessed(status)
		}
		return
	}

	for i := range group {
		m.processItem(ctx, &group[i], html)
	}
}

// processItem handles one request against the already-fetched slot page.
// Failures are contained to the item.
func (m *Manager) processItem(ctx context.Context, item *models.RetryItem, html string) {
	defer func() {
		if r := recover(); r != nil {
			m.stateMu.Lock()
			m.state.ErrorCount++
			m.stateMu.Unlock()
			msg := fmt.Sprintf("panic: %v", r)
			_ = m.Update(ctx, item.ID, models.StatusPatch(models.StatusError, msg))
			m.logger.Error().Str("id", item.ID).Str("panic", msg).Msg("item processing panicked")
		}
	}()

	m.stateMu.Lock()
	m.state.ProcessedCount++
	m.stateMu.Unlock()

	if done, err := m.revalidate(ctx, item); err != nil {
		m.itemFailed(ctx, item, err)
		return
	} else if done {
		return
	}

	startClock := timeslot.Clock(item.StartSlot)
	endClock := timeslot.Clock(item.EndSlot)
	if !portal.SlotOpen(html, startClock, endClock) {
		// Слот все еще занят: заявка остается in-progress, сбрасываем
		// только устаревшую цветовую подсказку.
		if item.StatusColor != "" {
			empty := ""
			if err := m.Update(ctx, item.ID, models.ItemPatch{StatusColor: &empty}); err != nil {
				m.logger.Error().Err(err).Str("id", item.ID).Msg("failed to clear status color")
			}
		}
		return
	}

	text, err := m.portal.SubmitBooking(ctx, item.URL, item.Body)
	if err != nil {
		status, msg := portal.Classify(err)
		if portal.SetsUnauthorizedFlag(err) {
			m.setUnauthorizedFlag(ctx, true)
		}
		if uerr := m.Update(ctx, item.ID, models.StatusPatch(status, msg)); uerr != nil {
			m.logger.Error().Err(uerr).Str("id", item.ID).Msg("failed to record submit error status")
		}
		metrics.IncProcessed(status)
		return
	}

	if strings.Contains(text, "error") {
		if uerr := m.Update(ctx, item.ID, models.StatusPatch(models.StatusError, models.MsgSubmitRejected)); uerr != nil {
			m.logger.Error().Err(uerr).Str("id", item.ID).Msg("failed to record rejected submit")
		}
		metrics.IncProcessed(models.StatusError)
		return
	}

	if err := m.Update(ctx, item.ID, models.StatusPatch(models.StatusSuccess, models.MsgSuccess)); err != nil {
		m.logger.Error().Err(err).Str("id", item.ID).Msg("failed to record success")
		return
	}
	metrics.IncProcessed(models.StatusSuccess)
	m.logger.Info().
		Str("tvAppId", item.TvAppID).
		Str("slot", item.StartSlot).
		Msg("booking moved to requested slot")

	// Уведомления не должны задерживать обработку остальных заявок.
	go m.notifySuccess(*item)
}

// revalidate runs the pre-checks that short-circuit the slot scan:
// completion by another task, target-window expiry, current-slot start.
// It returns done=true when the item got a terminal status.
func (m *Manager) revalidate(ctx context.Context, item *models.RetryItem) (bool, error) {
	full, err := m.GetAll(ctx)
	if err != nil {
		return false, err
	}
	for i := range full {
		other := &full[i]
		if other.ID != item.ID && other.TvAppID == item.TvAppID && other.Status == models.StatusSuccess {
			if err := m.Update(ctx, item.ID, models.StatusPatch(models.StatusAnotherTask, models.MsgAnotherTask)); err != nil {
				return false, err
			}
			metrics.IncProcessed(models.StatusAnotherTask)
			return true, nil
		}
	}

	now := m.now()
	if expired, err := timeslot.Expired(item.EndSlot, now); err == nil && expired {
		if err := m.Update(ctx, item.ID, models.StatusPatch(models.StatusExpired, models.MsgExpired)); err != nil {
			return false, err
		}
		metrics.IncProcessed(models.StatusExpired)
		return true, nil
	}

	if item.CurrentSlot != "" {
		if began, err := timeslot.Began(item.CurrentSlot, now); err == nil && began {
			if err := m.Update(ctx, item.ID, models.StatusPatch(models.StatusExpired, models.MsgCurrentSlotBegan)); err != nil {
				return false, err
			}
			metrics.IncProcessed(models.StatusExpired)
			return true, nil
		}
	}

	return false, nil
}

// itemFailed records an unexpected per-item failure without aborting the
// rest of the group.
func (m *Manager) itemFailed(ctx context.Context, item *models.RetryItem, err error) {
	m.stateMu.Lock()
	m.state.ErrorCount++
	m.stateMu.Unlock()

	if uerr := m.Update(ctx, item.ID, models.StatusPatch(models.StatusError, err.Error())); uerr != nil {
		m.logger.Error().Err(uerr).Str("id", item.ID).Msg("failed to record item error")
	}
	metrics.IncProcessed(models.StatusError)
	m.logger.Error().Err(err).Str("id", item.ID).Msg("item processing failed")
}

// notifySuccess enriches the item with driver/container metadata when
// missing and fires the notification fan-out. Best effort end to end.
func (m *Manager) notifySuccess(item models.RetryItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if item.DriverName == "" || item.ContainerNumber == "" {
		if form, err := m.portal.FetchEditForm(ctx, item.TvAppID); err == nil {
			driver, container := portal.ExtractBookingMeta(form)
			patch := models.ItemPatch{}
			if driver != "" && item.DriverName == "" {
				item.DriverName = driver
				patch.DriverName = &driver
			}
			if container != "" && item.ContainerNumber == "" {
				item.ContainerNumber = container
				patch.ContainerNumber = &container
			}
			if patch.DriverName != nil || patch.ContainerNumber != nil {
				if err := m.Update(ctx, item.ID, patch); err != nil {
					m.logger.Warn().Err(err).Str("id", item.ID).Msg("failed to cache booking metadata")
				}
			}
		} else {
			m.logger.Debug().Err(err).Str("tvAppId", item.TvAppID).Msg("edit form fetch failed, notifying without metadata")
		}
	}

	m.dispatcher.Dispatch(ctx, models.Notification{
		TvAppID:         item.TvAppID,
		BookingTime:     item.StartSlot,
		DriverName:      item.DriverName,
		ContainerNumber: item.ContainerNumber,
	})
}
