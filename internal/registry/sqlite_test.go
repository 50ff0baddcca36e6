package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteRegistryLogCallInsertsRow(t *testing.T) {
	reg, err := NewSQLiteRegistry(":memory:")
	require.NoError(t, err)
	defer reg.Close()

	ctx := context.Background()
	started := time.Now().Add(-time.Second)
	completed := time.Now()
	require.NoError(t, reg.LogCall(ctx, "trace-1", "agent", "agent-a", []byte(`{"task":"hi"}`), []byte(`{"ok":true}`), started, completed))

	var count int
	row := reg.db.QueryRowContext(ctx, `SELECT count(*) FROM call_logs WHERE trace_id = ?`, "trace-1")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestSQLiteRegistrySatisfiesCallLogger(t *testing.T) {
	reg, err := NewSQLiteRegistry(":memory:")
	require.NoError(t, err)
	defer reg.Close()

	var _ CallLogger = reg
}
