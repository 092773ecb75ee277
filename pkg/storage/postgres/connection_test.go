package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single URL",
			input:    "postgres://localhost:5432/caseboard",
			expected: []string{"postgres://localhost:5432/caseboard"},
		},
		{
			name:  "URLs with whitespace and empty entries",
			input: " postgres://r1:5432/caseboard , ,postgres://r2:5432/caseboard,",
			expected: []string{
				"postgres://r1:5432/caseboard",
				"postgres://r2:5432/caseboard",
			},
		},
		{
			name:     "only commas and whitespace",
			input:    " , , ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestConnectionConfig_Defaults(t *testing.T) {
	cfg := ConnectionConfig{}.withDefaults()
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MinConns)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, time.Hour, cfg.MaxLifetime)

	cfg = ConnectionConfig{MaxConns: 5, Timeout: time.Second}.withDefaults()
	assert.Equal(t, 5, cfg.MaxConns)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestNewConnectionManager_UnreachablePrimary(t *testing.T) {
	cm, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL: "postgres://nonexistent.invalid:9999/caseboard?connect_timeout=1&sslmode=disable",
		Timeout:    2 * time.Second,
	}, nil)
	assert.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "failed to connect to primary")
}

func TestConnectionManager_Replica(t *testing.T) {
	primary, _ := newPingMock(t)
	defer primary.Close()

	t.Run("no replicas falls back to primary", func(t *testing.T) {
		cm := NewConnectionManagerFromDB(primary)
		assert.Same(t, primary, cm.Replica())
		assert.Same(t, primary, cm.Primary())
		assert.Equal(t, 0, cm.ReplicaCount())
	})

	t.Run("round robin across replicas", func(t *testing.T) {
		r1, _ := newPingMock(t)
		defer r1.Close()
		r2, _ := newPingMock(t)
		defer r2.Close()

		cm := NewConnectionManagerFromDB(primary, r1, r2)
		seen := map[*sql.DB]int{}
		for i := 0; i < 10; i++ {
			seen[cm.Replica()]++
		}

		assert.Equal(t, 5, seen[r1])
		assert.Equal(t, 5, seen[r2])
		assert.Zero(t, seen[primary])
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("primary down", func(t *testing.T) {
		primary, mock := newPingMock(t)
		defer primary.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := NewConnectionManagerFromDB(primary).HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("one replica down is tolerated", func(t *testing.T) {
		primary, pm := newPingMock(t)
		defer primary.Close()
		r1, m1 := newPingMock(t)
		defer r1.Close()
		r2, m2 := newPingMock(t)
		defer r2.Close()

		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("timeout"))
		m2.ExpectPing()

		assert.NoError(t, NewConnectionManagerFromDB(primary, r1, r2).HealthCheck(ctx))
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pm := newPingMock(t)
		defer primary.Close()
		r1, m1 := newPingMock(t)
		defer r1.Close()

		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("timeout"))

		err := NewConnectionManagerFromDB(primary, r1).HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replica-0")
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, _ := newPingMock(t)
	defer primary.Close()
	healthy, hm := newPingMock(t)
	defer healthy.Close()
	broken, bm := newPingMock(t)

	hm.ExpectPing()
	bm.ExpectPing().WillReturnError(errors.New("connection reset"))
	bm.ExpectClose()

	cm := NewConnectionManagerFromDB(primary, healthy, broken)
	removed := cm.RemoveUnhealthyReplicas(context.Background())

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cm.ReplicaCount())
	assert.Same(t, healthy, cm.Replica())
	assert.NoError(t, bm.ExpectationsWereMet())
}

func TestConnectionManager_Close(t *testing.T) {
	primary, pm := newPingMock(t)
	replica, rm := newPingMock(t)
	pm.ExpectClose()
	rm.ExpectClose()

	cm := NewConnectionManagerFromDB(primary, replica)
	require.NoError(t, cm.Close())
	assert.Equal(t, 0, cm.ReplicaCount())
	assert.NoError(t, pm.ExpectationsWereMet())
	assert.NoError(t, rm.ExpectationsWereMet())
}

func TestConnectionManager_StartHealthCheckRoutine(t *testing.T) {
	primary, _ := newPingMock(t)
	defer primary.Close()
	replica, rm := newPingMock(t)
	rm.ExpectPing().WillReturnError(errors.New("gone"))
	rm.ExpectClose()

	cm := NewConnectionManagerFromDB(primary, replica)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm.StartHealthCheckRoutine(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return cm.ReplicaCount() == 0
	}, time.Second, 10*time.Millisecond)
}
