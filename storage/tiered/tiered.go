// Package tiered provides a Hot/Cold gateway.QuotaStore that orchestrates a
// fast ephemeral backend (Hot) with a durable persistent backend (Cold):
// Load is read-through (Hot, falling back to Cold and repairing Hot), Save
// is write-through (Cold first for durability, then best-effort Hot).
package tiered

import (
	"errors"
	"fmt"
	"sync"
)

// Config configures the tiered store's behavior.
type Config struct {
	// Hot is the L1 store (e.g. Redis, memory) used for fast reads.
	Hot Store

	// Cold is the L2 store (e.g. Postgres, Firestore) treated as the
	// source of truth.
	Cold Store

	// AsyncUsageSync, when true, writes to Cold on a background worker
	// instead of blocking Save on it. If false, Save writes Cold
	// synchronously before returning.
	AsyncUsageSync bool

	// SyncBufferSize is the buffered channel size for async Cold writes.
	// Default: 1000.
	SyncBufferSize int

	// AsyncErrorHandler is called when an async Cold write fails or the
	// sync queue is full. Essential for monitoring hot/cold drift.
	AsyncErrorHandler func(error)
}

// Store mirrors gateway.QuotaStore so this package avoids importing the
// gateway package directly, keeping storage/ a leaf dependency.
type Store interface {
	Load() (map[string]int, error)
	Save(map[string]int) error
}

// Storage implements a Hot/Cold tiered gateway.QuotaStore.
type Storage struct {
	hot  Store
	cold Store
	conf Config

	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a tiered store. Both Hot and Cold are required.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncUsageSync {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker, if one was started.
func (s *Storage) Close() error {
	if s.conf.AsyncUsageSync {
		select {
		case <-s.shutdown:
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background Cold-sync loop. Sequential processing
// preserves write ordering.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				if err := job(); err != nil && s.conf.AsyncErrorHandler != nil {
					s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
				}
			case <-s.shutdown:
				for {
					select {
					case job := <-s.syncQueue:
						_ = job()
					default:
						return
					}
				}
			}
		}
	}()
}

// Load reads Hot first; on any error or empty result it reads Cold and
// repairs Hot with what it found.
func (s *Storage) Load() (map[string]int, error) {
	counters, err := s.hot.Load()
	if err == nil && len(counters) > 0 {
		return counters, nil
	}

	counters, err = s.cold.Load()
	if err != nil {
		return nil, err
	}
	if len(counters) > 0 {
		_ = s.hot.Save(counters)
	}
	return counters, nil
}

// Save writes Cold first (durability), then Hot. When AsyncUsageSync is
// enabled, Hot is written synchronously instead (for low-latency reads)
// and Cold is enqueued for background sync.
func (s *Storage) Save(counters map[string]int) error {
	if s.conf.AsyncUsageSync {
		if err := s.hot.Save(counters); err != nil {
			return err
		}

		cloned := make(map[string]int, len(counters))
		for k, v := range counters {
			cloned[k] = v
		}

		select {
		case s.syncQueue <- func() error { return s.cold.Save(cloned) }:
		default:
			if s.conf.AsyncErrorHandler != nil {
				s.conf.AsyncErrorHandler(errors.New("tiered storage: sync queue full, dropping cold write"))
			}
		}
		return nil
	}

	if err := s.cold.Save(counters); err != nil {
		return err
	}
	_ = s.hot.Save(counters)
	return nil
}
