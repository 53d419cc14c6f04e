package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"slotwatch/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverStore prefers the primary backend and falls back when it
// errors, probing the primary again after a cooldown. Change watching is
// owned by the wrapper so observers see mutations regardless of which
// backend took the write.
type FailoverStore struct {
	primary  domain.Store
	fallback domain.Store
	logger   *zerolog.Logger
	hub      *watchHub

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

const recoveryProbeInterval = time.Minute

func NewFailoverStore(primary, fallback domain.Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		hub:      newWatchHub(),
	}
}

func (s *FailoverStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("Primary store failed, falling back")
	s.isDown.Store(true)
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) shouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCheck) > recoveryProbeInterval
}

func (s *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.isDown.Load() {
		val, err := s.primary.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		s.markDown(err)
	} else if s.shouldProbe() {
		val, err := s.primary.Get(ctx, key)
		if err == nil {
			s.isDown.Store(false)
			s.logger.Info().Msg("Primary store recovered")
			return val, nil
		}
		s.mu.Lock()
		s.lastCheck = time.Now()
		s.mu.Unlock()
	}

	return s.fallback.Get(ctx, key)
}

func (s *FailoverStore) Set(ctx context.Context, key string, value []byte) error {
	old, _ := s.Get(ctx, key)

	wrote := false
	if !s.isDown.Load() {
		if err := s.primary.Set(ctx, key, value); err == nil {
			wrote = true
		} else {
			s.markDown(err)
		}
	}
	if !wrote {
		if err := s.fallback.Set(ctx, key, value); err != nil {
			return err
		}
	}

	s.hub.dispatch(key, value, old)
	return nil
}

func (s *FailoverStore) Remove(ctx context.Context, key string) error {
	old, _ := s.Get(ctx, key)

	removed := false
	if !s.isDown.Load() {
		if err := s.primary.Remove(ctx, key); err == nil {
			removed = true
		} else {
			s.markDown(err)
		}
	}
	if !removed {
		if err := s.fallback.Remove(ctx, key); err != nil {
			return err
		}
	}

	if old != nil {
		s.hub.dispatch(key, nil, old)
	}
	return nil
}

// Watch registers on the wrapper, not the wrapped backends: the inner
// hubs would double-fire for writes the wrapper mirrors.
func (s *FailoverStore) Watch(key string, fn func(newValue, oldValue []byte)) {
	s.hub.add(key, fn)
}

func (s *FailoverStore) Close() error {
	err := s.primary.Close()
	if ferr := s.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
