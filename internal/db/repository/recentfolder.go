package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/clearcut-studio/studio-server/internal/db/models"
	"github.com/clearcut-studio/studio-server/internal/pipeline"
)

// MaxRecentFolders caps the persisted batch history.
const MaxRecentFolders = 20

type IRecentFolderRepository interface {
	Repository[models.RecentFolder]
	WithTx(tx *bun.Tx) IRecentFolderRepository
	WithDB(db *bun.DB) IRecentFolderRepository
	AddRecentFolder(ctx context.Context, rec pipeline.RecentFolder) error
	ListRecentFolders(ctx context.Context) ([]models.RecentFolder, error)
}

// RecentFolderRepository keeps the newest MaxRecentFolders results,
// deduplicated by (path, name): re-processing a folder replaces its entry.
type RecentFolderRepository struct {
	db bun.IDB
}

func NewRecentFolderRepository(db *bun.DB) IRecentFolderRepository {
	return &RecentFolderRepository{db: db}
}

func (r *RecentFolderRepository) Create(ctx context.Context, folder *models.RecentFolder) (*models.RecentFolder, error) {
	if folder == nil {
		return nil, fmt.Errorf("recent folder model is nil")
	}

	if err := r.db.NewInsert().Model(folder).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}
	return folder, nil
}

func (r *RecentFolderRepository) GetByID(ctx context.Context, id string) (*models.RecentFolder, error) {
	var folder models.RecentFolder
	if err := r.db.NewSelect().Model(&folder).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *RecentFolderRepository) UpdateByID(ctx context.Context, id string, folder *models.RecentFolder) (*models.RecentFolder, error) {
	if folder == nil {
		return nil, fmt.Errorf("recent folder model is nil")
	}

	if err := r.db.NewUpdate().Model(folder).Where("id = ?", id).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}
	return folder, nil
}

func (r *RecentFolderRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.RecentFolder{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *RecentFolderRepository) AddRecentFolder(ctx context.Context, rec pipeline.RecentFolder) error {
	record := models.NewRecentFolder(rec.Name, rec.Path)
	record.FilesProcessed = rec.FilesProcessed
	record.DesignCreated = rec.DesignCreated
	record.Timestamp = rec.Timestamp

	if len(rec.Errors) > 0 {
		encoded, err := json.Marshal(rec.Errors)
		if err != nil {
			return err
		}
		record.Errors = string(encoded)
	}

	// Replace any previous run of the same folder, then insert and trim
	// everything past the cap.
	_, err := r.db.NewDelete().
		Model(&models.RecentFolder{}).
		Where("path = ?", rec.Path).
		Where("name = ?", rec.Name).
		Exec(ctx)
	if err != nil {
		return err
	}

	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return err
	}

	return r.trim(ctx)
}

func (r *RecentFolderRepository) ListRecentFolders(ctx context.Context) ([]models.RecentFolder, error) {
	var folders []models.RecentFolder
	err := r.db.NewSelect().
		Model(&folders).
		Order("timestamp DESC").
		Limit(MaxRecentFolders).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func (r *RecentFolderRepository) trim(ctx context.Context) error {
	var keep []string
	err := r.db.NewSelect().
		Model(&models.RecentFolder{}).
		Column("id").
		Order("timestamp DESC").
		Limit(MaxRecentFolders).
		Scan(ctx, &keep)
	if err != nil {
		return err
	}
	if len(keep) < MaxRecentFolders {
		return nil
	}

	_, err = r.db.NewDelete().
		Model(&models.RecentFolder{}).
		Where("id NOT IN (?)", bun.In(keep)).
		Exec(ctx)
	return err
}

func (r *RecentFolderRepository) WithTx(tx *bun.Tx) IRecentFolderRepository {
	return &RecentFolderRepository{db: tx}
}

func (r *RecentFolderRepository) WithDB(db *bun.DB) IRecentFolderRepository {
	return &RecentFolderRepository{db: db}
}
