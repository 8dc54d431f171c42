package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlabot/charla/pkg/storage"
)

func TestLog_AppendAndRecent(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "charla.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log, err := NewLog(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "help", "521555000001", nil, true))
	require.NoError(t, log.Append(ctx, "promote", "owner1", []string{"u2", "admin"}, false))

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Every entry gets its own id even at the same timestamp.
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	byCommand := map[string]LogEntry{}
	for _, e := range entries {
		byCommand[e.Command] = e
	}
	assert.True(t, byCommand["help"].Success)
	assert.False(t, byCommand["promote"].Success)
	assert.Equal(t, "u2 admin", byCommand["promote"].Args)

	entries, err = log.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
