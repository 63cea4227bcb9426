package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecentFolder is one line of the persisted batch history. Errors is a
// JSON array stored as text so both dialects handle it the same way.
type RecentFolder struct {
	bun.BaseModel `bun:"table:recent_folders"`

	ID             uuid.UUID `bun:",type:uuid,pk"`
	Name           string    `bun:",notnull"`
	Path           string    `bun:",notnull"`
	FilesProcessed int       `bun:",notnull,default:0"`
	DesignCreated  bool      `bun:",notnull,default:false"`
	Errors         string    `bun:",nullzero"`
	Timestamp      time.Time `bun:",notnull,default:current_timestamp"`
}

func NewRecentFolder(name, path string) *RecentFolder {
	return &RecentFolder{
		ID:   uuid.Must(uuid.NewRandom()),
		Name: name,
		Path: path,
	}
}
