package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/bancho-server/internal/packet"
	"github.com/bancho-server/internal/session"
)

// Sweeper drops expired cache items
type Sweeper interface {
	Sweep() int
}

// Reaper logs out sessions that stopped polling and sweeps the local cache
type Reaper struct {
	sessions *session.Registry
	sweeper  Sweeper
	idle     time.Duration
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReaper creates a reaper. sweeper may be nil.
func NewReaper(sessions *session.Registry, sweeper Sweeper, idle, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		sessions: sessions,
		sweeper:  sweeper,
		idle:     idle,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the reaper until ctx ends or Stop is called
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("session reaper started", "idle_timeout", r.idle, "interval", r.interval)
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.RunOnce()
			}
		}
	}()
}

// Stop stops the reaper and waits for it to exit
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// RunOnce removes idle sessions, announces their logout and returns how many were removed
func (r *Reaper) RunOnce() int {
	expired := r.sessions.Expired(r.idle)
	for _, pr := range expired {
		if id := pr.UserID(); id != 0 {
			r.sessions.Broadcast(pr, packet.UserLogout(int32(id)))
		}
		r.logger.Info("idle session removed", "user_id", pr.UserID(), "last_seen", pr.LastSeen())
	}
	if r.sweeper != nil {
		if n := r.sweeper.Sweep(); n > 0 {
			r.logger.Debug("cache swept", "expired", n)
		}
	}
	return len(expired)
}
