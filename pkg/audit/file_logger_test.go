package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWriteAndRead(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, logger.Log(ctx, &Event{
			Timestamp:  time.Now().UTC(),
			EventType:  EventTypeWorkspaceCreate,
			Status:     EventStatusSuccess,
			ResourceID: fmt.Sprintf("%d", i),
		}))
	}

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventTypeWorkspaceCreate, events[0].EventType)
	assert.Equal(t, "2", events[2].ResourceID)

	limited, err := logger.ReadLogs(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: dir,
		Rotate:   true,
		MaxSize:  200, // tiny, to force rotation
		MaxFiles: 2,
	})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, logger.Log(ctx, &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeMemberAdd,
			Status:    EventStatusSuccess,
			Message:   "padding so each line crosses the rotation threshold quickly",
		}))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)
	assert.LessOrEqual(t, len(rotated), 2)
}
