package audit

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	objects map[string][]byte
}

func (u *fakeUploader) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[key] = body
	return nil
}

func discardLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestArchiverArchivesAndDeletes(t *testing.T) {
	logger := newDBLogger(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120)
	for i := 0; i < 3; i++ {
		seedEvent(t, logger, func(e *Event) { e.Timestamp = old })
	}
	recent := seedEvent(t, logger, nil)

	uploader := &fakeUploader{}
	archiver := NewArchiver(logger, uploader, DefaultRetentionPolicy(), discardLogrus())

	archived, deleted, err := archiver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), archived)
	assert.Equal(t, int64(3), deleted)

	// one NDJSON batch with three lines
	require.Len(t, uploader.objects, 1)
	for key, body := range uploader.objects {
		assert.Contains(t, key, "audit/")
		assert.Contains(t, key, ".ndjson")
		lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
		assert.Len(t, lines, 3)
	}

	// the recent row survives
	remaining, err := logger.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)
}

func TestArchiverBatches(t *testing.T) {
	logger := newDBLogger(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120)
	for i := 0; i < 5; i++ {
		seedEvent(t, logger, func(e *Event) { e.Timestamp = old })
	}

	uploader := &fakeUploader{}
	archiver := NewArchiver(logger, uploader, DefaultRetentionPolicy(), discardLogrus())
	archiver.batchSize = 2

	archived, deleted, err := archiver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), archived)
	assert.Equal(t, int64(5), deleted)
	assert.Len(t, uploader.objects, 3)
}

func TestArchiverDeleteOnlyWhenArchivalDisabled(t *testing.T) {
	logger := newDBLogger(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120)
	seedEvent(t, logger, func(e *Event) { e.Timestamp = old })

	policy := DefaultRetentionPolicy()
	policy.ArchiveEnabled = false
	archiver := NewArchiver(logger, nil, policy, discardLogrus())

	archived, deleted, err := archiver.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, archived)
	assert.Equal(t, int64(1), deleted)
}

func TestArchiverRequiresUploader(t *testing.T) {
	logger := newDBLogger(t)
	archiver := NewArchiver(logger, nil, DefaultRetentionPolicy(), discardLogrus())

	_, _, err := archiver.Run(context.Background())
	assert.Error(t, err)
}
