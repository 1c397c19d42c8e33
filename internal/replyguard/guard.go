package replyguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderbot_backend/platform/logger"
)

// ErrBusy is returned when the client lock could not be taken within the wait budget.
var ErrBusy = errors.New("client is being handled elsewhere")

const (
	defaultTTL   = 5 * time.Minute
	defaultWait  = 10 * time.Second
	retryBackoff = 100 * time.Millisecond
	keyPrefix    = "orderbot:client-lock:"
)

// Options tunes a Guard.
type Options struct {
	// TTL bounds how long a crashed holder can block a client.
	TTL time.Duration
	// Wait is how long a caller polls for a held lock before giving up.
	Wait time.Duration
}

// Guard runs per-client critical sections under a Locker.
type Guard struct {
	locker Locker
	ttl    time.Duration
	wait   time.Duration
	log    *logger.Logger
}

func NewGuard(locker Locker, opts Options, log *logger.Logger) *Guard {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	} else if opts.Wait == 0 {
		opts.Wait = defaultWait
	}
	return &Guard{locker: locker, ttl: opts.TTL, wait: opts.Wait, log: log}
}

// WithClient runs fn while holding the lock for clientID.
// It returns ErrBusy if the lock stays held for longer than the wait budget.
func (g *Guard) WithClient(ctx context.Context, clientID int64, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%s%d", keyPrefix, clientID)

	lock, err := g.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			g.log.WithContext(ctx).Warn("failed to release client lock", "clientId", clientID, "error", err)
		}
	}()

	return fn(ctx)
}

func (g *Guard) acquire(ctx context.Context, key string) (Lock, error) {
	deadline := time.Now().Add(g.wait)
	for {
		lock, ok, err := g.locker.TryAcquire(ctx, key, g.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return lock, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrBusy
		}

		timer := time.NewTimer(retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
