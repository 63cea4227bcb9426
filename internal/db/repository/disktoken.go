package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/clearcut-studio/studio-server/internal/db/models"
	"github.com/clearcut-studio/studio-server/internal/db/seal"
)

// DefaultAccount labels the single storage account the desktop flow uses.
const DefaultAccount = "default"

type ITokenRepository interface {
	Repository[models.DiskToken]
	WithTx(tx *bun.Tx) ITokenRepository
	WithDB(db *bun.DB) ITokenRepository
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// TokenRepository stores the storage OAuth token sealed at rest. Its
// Token/SetToken/ClearToken trio is what the storage client consumes.
type TokenRepository struct {
	db      bun.IDB
	sealer  *seal.Sealer
	account string
}

func NewTokenRepository(db *bun.DB, sealer *seal.Sealer) ITokenRepository {
	return &TokenRepository{db: db, sealer: sealer, account: DefaultAccount}
}

func (r *TokenRepository) Create(ctx context.Context, token *models.DiskToken) (*models.DiskToken, error) {
	if token == nil {
		return nil, fmt.Errorf("disk token model is nil")
	}

	if err := r.db.NewInsert().Model(token).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}
	return token, nil
}

func (r *TokenRepository) GetByID(ctx context.Context, id string) (*models.DiskToken, error) {
	var token models.DiskToken
	if err := r.db.NewSelect().Model(&token).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *TokenRepository) UpdateByID(ctx context.Context, id string, token *models.DiskToken) (*models.DiskToken, error) {
	if token == nil {
		return nil, fmt.Errorf("disk token model is nil")
	}

	if err := r.db.NewUpdate().Model(token).Where("id = ?", id).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}
	return token, nil
}

func (r *TokenRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.DiskToken{}).Where("id = ?", id).Exec(ctx)
	return err
}

// Token unseals the stored token. No stored token yields the empty
// string, not an error.
func (r *TokenRepository) Token(ctx context.Context) (string, error) {
	var record models.DiskToken
	err := r.db.NewSelect().Model(&record).Where("account = ?", r.account).Scan(ctx)
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

func (r *TokenRepository) SetToken(ctx context.Context, token string) error {
	ciphertext, err := r.sealer.Seal([]byte(token))
	if err != nil {
		return err
	}

	record := models.NewDiskToken(r.account, ciphertext)
	_, err = r.db.NewInsert().
		Model(record).
		On("CONFLICT (account) DO UPDATE").
		Set("ciphertext = EXCLUDED.ciphertext").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(ctx)
	return err
}

func (r *TokenRepository) ClearToken(ctx context.Context) error {
	_, err := r.db.NewDelete().Model(&models.DiskToken{}).Where("account = ?", r.account).Exec(ctx)
	return err
}

func (r *TokenRepository) WithTx(tx *bun.Tx) ITokenRepository {
	return &TokenRepository{db: tx, sealer: r.sealer, account: r.account}
}

func (r *TokenRepository) WithDB(db *bun.DB) ITokenRepository {
	return &TokenRepository{db: db, sealer: r.sealer, account: r.account}
}
