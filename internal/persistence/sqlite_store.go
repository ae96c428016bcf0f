// Package persistence stores video records and queue state. SQLite is the
// default backend; PostgreSQL is used when a database URL is configured.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/video"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

var (
	_ video.Store = (*SQLiteStore)(nil)
	_ jobs.Store  = (*SQLiteStore)(nil)
)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

const videoColumns = `video_id, title, audio_path, subtitle_path, thumbnail_path, download_date`

// Save inserts rec or replaces the row with the same video id.
func (s *SQLiteStore) Save(ctx context.Context, rec *video.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO videos (`+videoColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title=excluded.title,
			audio_path=excluded.audio_path,
			subtitle_path=excluded.subtitle_path,
			thumbnail_path=excluded.thumbnail_path,
			download_date=excluded.download_date`,
		rec.VideoID,
		rec.Title,
		rec.AudioPath,
		nullString(rec.SubtitlePath),
		nullString(rec.ThumbnailPath),
		rec.DownloadDate.UTC(),
	)
	if err != nil {
		return fault.Wrap(err, fault.KindIO, "save video record").With("video_id", rec.VideoID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, videoID string) (*video.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, videoID)
	rec, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, video.ErrNotFound
	}
	return rec, err
}

// List returns every record, newest download first.
func (s *SQLiteStore) List(ctx context.Context) ([]*video.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY download_date DESC, video_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*video.Record, 0)
	for rows.Next() {
		rec, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, videoID string) (*video.Record, error) {
	rec, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE video_id = ?`, videoID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) ([]*video.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY download_date DESC, video_id ASC`)
	if err != nil {
		return nil, err
	}
	ret := make([]*video.Record, 0)
	for rows.Next() {
		rec, err := scanVideo(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ret = append(ret, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM videos`); err != nil {
		return nil, err
	}
	return ret, tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*video.Record, error) {
	var (
		rec       video.Record
		subtitle  sql.NullString
		thumbnail sql.NullString
	)
	if err := row.Scan(&rec.VideoID, &rec.Title, &rec.AudioPath, &subtitle, &thumbnail, &rec.DownloadDate); err != nil {
		return nil, err
	}
	rec.SubtitlePath = subtitle.String
	rec.ThumbnailPath = thumbnail.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.DownloadJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, url, video_id, title, status, progress, error, user_message, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.DownloadJob, 0)
	for rows.Next() {
		var item jobs.DownloadJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.URL,
			&item.VideoID,
			&item.Title,
			&status,
			&item.Progress,
			&item.Error,
			&item.UserMessage,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.DownloadJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, url, video_id, title, status, progress, error, user_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			url=excluded.url,
			video_id=excluded.video_id,
			title=excluded.title,
			status=excluded.status,
			progress=excluded.progress,
			error=excluded.error,
			user_message=excluded.user_message,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.URL,
		job.VideoID,
		job.Title,
		string(job.Status),
		job.Progress,
		job.Error,
		job.UserMessage,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	return err
}

// PruneJobsBefore removes finished jobs last updated before cutoff.
func (s *SQLiteStore) PruneJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?) AND updated_at < ?`,
		string(jobs.StatusSuccess), string(jobs.StatusFailed), string(jobs.StatusSkipped),
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
