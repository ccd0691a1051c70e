package deployevents

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// DistributedLock serializes the correlation pass across multiple
// nthlayer-server replicas via an etcd lease-backed mutex, so the same
// deployment event isn't correlated twice by two instances racing the
// same poll tick.
type DistributedLock struct {
	client *clientv3.Client
}

func NewDistributedLock(endpoints []string) (*DistributedLock, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("deployevents: connect etcd: %w", err)
	}
	return &DistributedLock{client: client}, nil
}

func (l *DistributedLock) Close() error { return l.client.Close() }

// WithLock runs fn while holding an etcd session lease on key, and
// releases it on return regardless of fn's outcome.
func (l *DistributedLock) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(30))
	if err != nil {
		return fmt.Errorf("deployevents: new lock session: %w", err)
	}
	defer session.Close()

	mutex := concurrency.NewMutex(session, "/nthlayer/locks/"+key)
	if err := mutex.Lock(ctx); err != nil {
		return fmt.Errorf("deployevents: acquire lock %s: %w", key, err)
	}
	defer mutex.Unlock(context.Background())

	return fn(ctx)
}

// NoopLock is used when no etcd endpoints are configured — a single
// nthlayer-server replica needs no distributed coordination.
type NoopLock struct{}

func (NoopLock) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Locker is satisfied by both DistributedLock and NoopLock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
