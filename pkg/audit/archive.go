package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Uploader stores one object. Implemented by the S3 client in
// pkg/storage/postgres.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver exports expired audit rows to object storage as NDJSON batches
// and then deletes them. The janitor runs it on a schedule.
type Archiver struct {
	logger    *DBLogger
	uploader  Uploader
	policy    RetentionPolicy
	batchSize int
	log       *logrus.Logger
	now       func() time.Time
}

// NewArchiver creates an archiver over the database logger. uploader may
// be nil when the policy disables archival.
func NewArchiver(logger *DBLogger, uploader Uploader, policy RetentionPolicy, log *logrus.Logger) *Archiver {
	if log == nil {
		log = logrus.New()
	}
	return &Archiver{
		logger:    logger,
		uploader:  uploader,
		policy:    policy,
		batchSize: 1000,
		log:       log,
		now:       time.Now,
	}
}

// Run archives rows older than the retention window and deletes them.
// Returns the number of archived and deleted rows.
func (a *Archiver) Run(ctx context.Context) (archived, deleted int64, err error) {
	cutoff := a.now().UTC().AddDate(0, 0, -a.policy.RetentionDays)

	if a.policy.ArchiveEnabled {
		if a.uploader == nil {
			return 0, 0, fmt.Errorf("archival enabled but no uploader configured")
		}
		archived, err = a.archiveBefore(ctx, cutoff)
		if err != nil {
			return archived, 0, err
		}
	}

	deleted, err = a.logger.DeleteBefore(ctx, cutoff)
	if err != nil {
		return archived, deleted, err
	}

	if archived > 0 || deleted > 0 {
		a.log.WithFields(logrus.Fields{
			"archived": archived,
			"deleted":  deleted,
			"cutoff":   cutoff.Format(time.RFC3339),
		}).Info("audit archive run complete")
	}
	return archived, deleted, nil
}

// archiveBefore uploads expired rows in NDJSON batches. Offsets walk the
// unchanged table; deletion happens only after every batch uploaded.
func (a *Archiver) archiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	runStamp := a.now().UTC().Format("2006-01-02T15-04-05Z")

	for batch := 0; ; batch++ {
		events, err := a.logger.Search(ctx, SearchFilter{
			EndTime:       &cutoff,
			Limit:         a.batchSize,
			Offset:        batch * a.batchSize,
			SortAscending: true,
		})
		if err != nil {
			return total, fmt.Errorf("failed to load archive batch: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		data, err := exportNDJSON(events)
		if err != nil {
			return total, err
		}

		key := fmt.Sprintf("%s/%s/batch-%04d.ndjson", a.policy.ArchivePrefix, runStamp, batch)
		if err := a.uploader.PutObject(ctx, key, data, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("failed to upload archive batch: %w", err)
		}
		total += int64(len(events))

		if len(events) < a.batchSize {
			return total, nil
		}
	}
}
