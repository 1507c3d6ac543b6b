package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KVEntry is one row of the keyed snapshot store. The state snapshot and the
// per-image slots all live in this table.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte
	UpdatedAt time.Time
}

const (
	ImageModeGenerate   string = "generate"
	ImageModeEdit       string = "edit"
	ImageModeMaskedEdit string = "masked_edit"
)

// GeneratedImage indexes images archived to the object store, one row per
// image returned by the API.
type GeneratedImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Prompt    string
	Mode      string `gorm:"size:20;not null"`
	ObjectKey string `gorm:"not null"`
	SizeBytes int64
	Usage     datatypes.JSON
	CreatedAt time.Time
}
