package persistence

import (
	"context"
	"time"

	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/pkg/log"
)

// Store is the combined record and queue store.
type Store interface {
	video.Store
	jobs.Store
	// PruneJobsBefore removes finished jobs last updated before cutoff.
	PruneJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Open returns a PostgreSQL store when databaseURL is set, otherwise the
// SQLite database at sqlitePath.
func Open(databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		log.Info("Using PostgreSQL store")
		pg, err := NewPostgresStore(databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	log.Info("Using SQLite store at %s", sqlitePath)
	lite, err := NewSQLiteStore(sqlitePath)
	if err != nil {
		return nil, err
	}
	return lite, nil
}
