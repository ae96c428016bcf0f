package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/video"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type videoRow struct {
	VideoID       string `gorm:"primaryKey"`
	Title         string `gorm:"not null;default:''"`
	AudioPath     string `gorm:"not null"`
	SubtitlePath  *string
	ThumbnailPath *string
	DownloadDate  time.Time `gorm:"not null;index"`
}

func (videoRow) TableName() string { return "videos" }

type jobRow struct {
	ID          string `gorm:"primaryKey"`
	Source      string
	DedupeKey   string
	URL         string
	VideoID     string
	Title       string
	Status      string
	Progress    float64
	Error       string
	UserMessage string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (jobRow) TableName() string { return "jobs" }

// PostgresStore keeps the same tables as SQLiteStore in PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

var (
	_ video.Store = (*PostgresStore)(nil)
	_ jobs.Store  = (*PostgresStore)(nil)
)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&videoRow{}, &jobRow{}); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) Save(ctx context.Context, rec *video.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row := toVideoRow(rec)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fault.Wrap(err, fault.KindIO, "save video record").With("video_id", rec.VideoID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, videoID string) (*video.Record, error) {
	var row videoRow
	err := s.db.WithContext(ctx).First(&row, "video_id = ?", videoID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, video.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.record(), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*video.Record, error) {
	return s.list(s.db.WithContext(ctx))
}

func (s *PostgresStore) list(db *gorm.DB) ([]*video.Record, error) {
	var rows []videoRow
	if err := db.Order("download_date DESC").Order("video_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]*video.Record, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].record())
	}
	return ret, nil
}

func (s *PostgresStore) Delete(ctx context.Context, videoID string) (*video.Record, error) {
	rec, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&videoRow{}, "video_id = ?", videoID).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) ([]*video.Record, error) {
	var ret []*video.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if ret, err = s.list(tx); err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&videoRow{}).Error
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *PostgresStore) LoadJobs(ctx context.Context) ([]*jobs.DownloadJob, error) {
	var rows []jobRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]*jobs.DownloadJob, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].job())
	}
	return ret, nil
}

func (s *PostgresStore) UpsertJob(ctx context.Context, job *jobs.DownloadJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	row := toJobRow(job)
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Delete(&jobRow{}, "id = ?", jobID).Error
}

func (s *PostgresStore) PruneJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := []string{string(jobs.StatusSuccess), string(jobs.StatusFailed), string(jobs.StatusSkipped)}
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminal, cutoff.UTC()).
		Delete(&jobRow{})
	return res.RowsAffected, res.Error
}

func toVideoRow(rec *video.Record) videoRow {
	return videoRow{
		VideoID:       rec.VideoID,
		Title:         rec.Title,
		AudioPath:     rec.AudioPath,
		SubtitlePath:  optional(rec.SubtitlePath),
		ThumbnailPath: optional(rec.ThumbnailPath),
		DownloadDate:  rec.DownloadDate.UTC(),
	}
}

func (r videoRow) record() *video.Record {
	rec := &video.Record{
		VideoID:      r.VideoID,
		Title:        r.Title,
		AudioPath:    r.AudioPath,
		DownloadDate: r.DownloadDate,
	}
	if r.SubtitlePath != nil {
		rec.SubtitlePath = *r.SubtitlePath
	}
	if r.ThumbnailPath != nil {
		rec.ThumbnailPath = *r.ThumbnailPath
	}
	return rec
}

func toJobRow(job *jobs.DownloadJob) jobRow {
	return jobRow{
		ID:          job.ID,
		Source:      job.Source,
		DedupeKey:   job.DedupeKey,
		URL:         job.URL,
		VideoID:     job.VideoID,
		Title:       job.Title,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Error:       job.Error,
		UserMessage: job.UserMessage,
		CreatedAt:   job.CreatedAt.UTC(),
		UpdatedAt:   job.UpdatedAt.UTC(),
	}
}

func (r jobRow) job() *jobs.DownloadJob {
	return &jobs.DownloadJob{
		ID:          r.ID,
		Source:      r.Source,
		DedupeKey:   r.DedupeKey,
		URL:         r.URL,
		VideoID:     r.VideoID,
		Title:       r.Title,
		Status:      jobs.Status(r.Status),
		Progress:    r.Progress,
		Error:       r.Error,
		UserMessage: r.UserMessage,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
