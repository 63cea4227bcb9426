package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderKey is a sealed API key for one background-removal provider.
// Ciphertext is AES-GCM output; only the mask is ever shown back.
type ProviderKey struct {
	bun.BaseModel `bun:"table:provider_keys"`

	ID         uuid.UUID    `bun:",type:uuid,pk"`
	Provider   string       `bun:",notnull,unique"`
	Ciphertext []byte       `bun:",notnull"`
	KeyMask    string       `bun:",notnull"`
	CreatedAt  bun.NullTime `bun:",notnull,default:current_timestamp"`
	UpdatedAt  bun.NullTime `bun:",notnull,nullzero,default:current_timestamp"`
}

func NewProviderKey(provider string, ciphertext []byte, mask string) *ProviderKey {
	return &ProviderKey{
		ID:         uuid.Must(uuid.NewRandom()),
		Provider:   provider,
		Ciphertext: ciphertext,
		KeyMask:    mask,
	}
}
