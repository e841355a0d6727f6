package repository

import (
	"context"
	"time"

	"replay_worker/internal/replay/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExportRecord one row per job, last event wins
type ExportRecord struct {
	JobID        string `gorm:"primaryKey;size:128"`
	Phase        string `gorm:"size:32"`
	Progress     int
	Status       string `gorm:"size:16;index"`
	ResultURI    string
	Checksum     string `gorm:"size:64"`
	ErrorCode    string `gorm:"size:64"`
	ErrorMessage string
	UpdatedAt    time.Time
}

// ExportRepo postgres ledger of job outcomes
type ExportRepo interface {
	AutoMigrate() error
	EventPublisher
}

type exportRepo struct {
	db *gorm.DB
}

// NewExportRepo create ExportRepo
func NewExportRepo(db *gorm.DB) ExportRepo {
	return &exportRepo{db: db}
}

func (r *exportRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&ExportRecord{})
}

// PublishProgress 只更新進度欄位，不覆蓋已寫入的結果
func (r *exportRepo) PublishProgress(ctx context.Context, ev domain.ProgressEvent) error {
	rec := ExportRecord{JobID: ev.JobID, Phase: string(ev.Phase), Progress: ev.Progress}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phase", "progress", "updated_at"}),
	}).Create(&rec).Error
}

// PublishResult upsert of the terminal outcome
func (r *exportRepo) PublishResult(ctx context.Context, ev domain.ResultEvent) error {
	rec := ExportRecord{
		JobID:        ev.JobID,
		Status:       string(ev.Status),
		ResultURI:    ev.ResultURI,
		Checksum:     ev.Checksum,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "result_uri", "checksum", "error_code", "error_message", "updated_at",
		}),
	}).Create(&rec).Error
}
