package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/clearcut-studio/studio-server/internal/db/models"
	"github.com/clearcut-studio/studio-server/internal/db/seal"
	"github.com/clearcut-studio/studio-server/internal/utils/randutil"
)

type IProviderKeyRepository interface {
	Repository[models.ProviderKey]
	WithTx(tx *bun.Tx) IProviderKeyRepository
	WithDB(db *bun.DB) IProviderKeyRepository
	SetKey(ctx context.Context, provider, key string) error
	Key(ctx context.Context, provider string) (string, error)
	DeleteKey(ctx context.Context, provider string) error
	ListKeys(ctx context.Context) ([]models.ProviderKey, error)
}

// ProviderKeyRepository stores provider API keys sealed at rest. Key
// implements the lookup the processing pipeline asks for by model name.
type ProviderKeyRepository struct {
	db     bun.IDB
	sealer *seal.Sealer
}

func NewProviderKeyRepository(db *bun.DB, sealer *seal.Sealer) IProviderKeyRepository {
	return &ProviderKeyRepository{db: db, sealer: sealer}
}

func (r *ProviderKeyRepository) Create(ctx context.Context, key *models.ProviderKey) (*models.ProviderKey, error) {
	if key == nil {
		return nil, fmt.Errorf("provider key model is nil")
	}

	if err := r.db.NewInsert().Model(key).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}
	return key, nil
}

func (r *ProviderKeyRepository) GetByID(ctx context.Context, id string) (*models.ProviderKey, error) {
	var key models.ProviderKey
	if err := r.db.NewSelect().Model(&key).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *ProviderKeyRepository) UpdateByID(ctx context.Context, id string, key *models.ProviderKey) (*models.ProviderKey, error) {
	if key == nil {
		return nil, fmt.Errorf("provider key model is nil")
	}

	if err := r.db.NewUpdate().Model(key).Where("id = ?", id).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}
	return key, nil
}

func (r *ProviderKeyRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.ProviderKey{}).Where("id = ?", id).Exec(ctx)
	return err
}

// SetKey seals and upserts the key for provider.
func (r *ProviderKeyRepository) SetKey(ctx context.Context, provider, key string) error {
	ciphertext, err := r.sealer.Seal([]byte(key))
	if err != nil {
		return err
	}

	record := models.NewProviderKey(provider, ciphertext, randutil.MaskString(key, 4, 2))
	_, err = r.db.NewInsert().
		Model(record).
		On("CONFLICT (provider) DO UPDATE").
		Set("ciphertext = EXCLUDED.ciphertext").
		Set("key_mask = EXCLUDED.key_mask").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(ctx)
	return err
}

// Key unseals the stored key for provider. A missing row is not an
// error; it returns the empty string so env-var fallback can apply.
func (r *ProviderKeyRepository) Key(ctx context.Context, provider string) (string, error) {
	var record models.ProviderKey
	err := r.db.NewSelect().Model(&record).Where("provider = ?", provider).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	plaintext, err := r.sealer.Open(record.Ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (r *ProviderKeyRepository) DeleteKey(ctx context.Context, provider string) error {
	_, err := r.db.NewDelete().Model(&models.ProviderKey{}).Where("provider = ?", provider).Exec(ctx)
	return err
}

func (r *ProviderKeyRepository) ListKeys(ctx context.Context) ([]models.ProviderKey, error) {
	var keys []models.ProviderKey
	if err := r.db.NewSelect().Model(&keys).Order("provider ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *ProviderKeyRepository) WithTx(tx *bun.Tx) IProviderKeyRepository {
	return &ProviderKeyRepository{db: tx, sealer: r.sealer}
}

func (r *ProviderKeyRepository) WithDB(db *bun.DB) IProviderKeyRepository {
	return &ProviderKeyRepository{db: db, sealer: r.sealer}
}
