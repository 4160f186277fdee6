//go:build integration

// Package containers starts throwaway Redis and Postgres instances for
// integration suites. Containers are shared across suites in one test binary
// and reaped by Ryuk when the binary exits.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 2 * time.Minute

// Manager lazily starts one container per backend.
type Manager struct {
	redisOnce sync.Once
	redis     *RedisContainer
	redisErr  error

	postgresOnce sync.Once
	postgres     *PostgresContainer
	postgresErr  error
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide Manager.
func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

// GetRedis returns the shared Redis container, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		m.redis, m.redisErr = startRedis(ctx)
	})
	if m.redisErr != nil {
		t.Fatalf("start redis container: %v", m.redisErr)
	}
	return m.redis
}

// GetPostgres returns the shared Postgres container, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.postgresOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		m.postgres, m.postgresErr = startPostgres(ctx)
	})
	if m.postgresErr != nil {
		t.Fatalf("start postgres container: %v", m.postgresErr)
	}
	return m.postgres
}
