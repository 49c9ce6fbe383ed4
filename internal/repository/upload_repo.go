package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/groupchat-api/internal/models"
)

// UploadRepository keeps one durable record per stored media file.
type UploadRepository interface {
	Create(ctx context.Context, record *models.UploadRecord) error
	// ListByUpload returns the files stored under one batch id, oldest first.
	ListByUpload(ctx context.Context, uploadID string) ([]models.UploadRecord, error)
}

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository returns the gorm-backed upload record store.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, record *models.UploadRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *uploadRepository) ListByUpload(ctx context.Context, uploadID string) ([]models.UploadRecord, error) {
	records := make([]models.UploadRecord, 0)
	err := r.db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error
	return records, err
}
