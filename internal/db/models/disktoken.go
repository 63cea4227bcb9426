package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DiskToken is the sealed OAuth token for the remote storage account.
// The table holds at most one row per account label.
type DiskToken struct {
	bun.BaseModel `bun:"table:disk_tokens"`

	ID         uuid.UUID    `bun:",type:uuid,pk"`
	Account    string       `bun:",notnull,unique"`
	Ciphertext []byte       `bun:",notnull"`
	CreatedAt  bun.NullTime `bun:",notnull,default:current_timestamp"`
	UpdatedAt  bun.NullTime `bun:",notnull,nullzero,default:current_timestamp"`
}

func NewDiskToken(account string, ciphertext []byte) *DiskToken {
	return &DiskToken{
		ID:         uuid.Must(uuid.NewRandom()),
		Account:    account,
		Ciphertext: ciphertext,
	}
}
