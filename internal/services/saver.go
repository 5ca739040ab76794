package services

import (
	"context"
	"sync"
	"time"

	"github.com/le-tueur/chatvc/pkg/logger"
)

const saveTimeout = 10 * time.Second

// Saver coalesces save requests. Every RequestSave cancels the pending
// write and schedules a new one, so a burst produces exactly one call to
// save once the burst has been quiet for the delay.
type Saver struct {
	mu    sync.Mutex
	delay time.Duration
	save  func(ctx context.Context) error
	timer *time.Timer
	gen   uint64

	// writeMu serializes calls to save so a later snapshot always lands last.
	writeMu sync.Mutex
}

func NewSaver(delay time.Duration, save func(ctx context.Context) error) *Saver {
	return &Saver{delay: delay, save: save}
}

func (s *Saver) RequestSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

func (s *Saver) fire(gen uint64) {
	s.mu.Lock()
	// A timer that lost the race with a newer request must not write.
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.save(ctx); err != nil {
		logger.Error("Error saving chat state: %v", err)
	}
}

// Pending reports whether a write is scheduled.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush cancels any scheduled write and saves immediately.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.save(ctx)
}
