package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	capi "github.com/hashicorp/consul/api"

	"github.com/pc-m/asterisk-scale-poc/config"
	"github.com/pc-m/asterisk-scale-poc/internal/retry"
)

// consulElector implements Elector on a consul session holding a KV lock.
// The session is created from the same health checks that back service
// registration, so election liveness follows the process health signal.
type consulElector struct {
	kv      KVAPI
	session SessionAPI
	logger  *slog.Logger

	ttl      time.Duration
	waitTime time.Duration
	retry    retry.Policy
}

func NewConsulElector(cfg *config.Config, logger *slog.Logger, client *capi.Client) Elector {
	return newConsulElector(cfg, logger, client.KV(), client.Session())
}

func newConsulElector(cfg *config.Config, logger *slog.Logger, kv KVAPI, session SessionAPI) *consulElector {
	return &consulElector{
		kv:       kv,
		session:  session,
		logger:   logger,
		ttl:      cfg.Discovery.SessionTTL,
		waitTime: cfg.Discovery.WatchWait,
		retry:    retry.FixedDelay(cfg.Discovery.RetryInterval),
	}
}

// Start campaigns for key until ctx is cancelled. Each campaign holds one
// session; losing the session (check failure, consul restart) resigns and
// starts a fresh campaign.
func (e *consulElector) Start(ctx context.Context, key string, checkIDs []string, onElected func(ctx context.Context), onResigned func()) error {
	for ctx.Err() == nil {
		if err := e.campaign(ctx, key, checkIDs, onElected, onResigned); err != nil {
			e.logger.Error("election error", "key", key, "error", err)
		}
		if err := e.retry.Wait(ctx); err != nil {
			break
		}
	}
	return nil
}

func (e *consulElector) campaign(ctx context.Context, key string, checkIDs []string, onElected func(ctx context.Context), onResigned func()) error {
	// The serfHealth check is implied by consul; ours are stacked on top.
	entry := &capi.SessionEntry{
		Name:     key,
		TTL:      e.ttl.String(),
		Checks:   append([]string{"serfHealth"}, checkIDs...),
		Behavior: capi.SessionBehaviorRelease,
	}

	sessionID, _, err := e.session.Create(entry, writeOptions(ctx))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	renewDone := make(chan struct{})
	go func() {
		// RenewPeriodic keeps the session alive until the campaign ends.
		_ = e.session.RenewPeriodic(e.ttl.String(), sessionID, nil, renewDone)
	}()
	defer func() {
		close(renewDone)
		_, _ = e.session.Destroy(sessionID, nil)
	}()

	if err := e.acquire(ctx, key, sessionID); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	onElected(ctx)
	defer onResigned()

	return e.hold(ctx, key, sessionID)
}

// acquire loops until the lock is held, waiting for the current holder to
// release between attempts.
func (e *consulElector) acquire(ctx context.Context, key, sessionID string) error {
	pair := &capi.KVPair{Key: key, Value: []byte(sessionID), Session: sessionID}

	for ctx.Err() == nil {
		held, _, err := e.kv.Acquire(pair, writeOptions(ctx))
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if held {
			e.logger.Info("leadership acquired", "key", key, "session", sessionID)
			return nil
		}

		if err := e.waitForChange(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// hold blocks while the lock is held, returning when the session no longer
// owns the key.
func (e *consulElector) hold(ctx context.Context, key, sessionID string) error {
	var index uint64

	for ctx.Err() == nil {
		q := queryOptions(ctx)
		q.WaitIndex = index
		q.WaitTime = e.waitTime

		pair, meta, err := e.kv.Get(key, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch %s: %w", key, err)
		}
		if pair == nil || pair.Session != sessionID {
			e.logger.Info("leadership lost", "key", key, "session", sessionID)
			return nil
		}
		index = meta.LastIndex
	}
	return nil
}

// waitForChange blocks until the lock key changes, bounded by the long-poll
// wait duration.
func (e *consulElector) waitForChange(ctx context.Context, key string) error {
	pair, meta, err := e.kv.Get(key, queryOptions(ctx))
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if pair == nil || pair.Session == "" {
		// Lock is free or in lock-delay, try to acquire again right away.
		return nil
	}

	q := queryOptions(ctx)
	q.WaitIndex = meta.LastIndex
	q.WaitTime = e.waitTime

	if _, _, err := e.kv.Get(key, q); err != nil {
		return fmt.Errorf("wait on %s: %w", key, err)
	}
	return nil
}
