package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"imagechat-backend/internal/database"
	"imagechat-backend/internal/storage"
	"imagechat-backend/pkg/api"
)

// Archiver keeps a copy of every generated image in the object store, with
// an index row recording the prompt and token usage. Archiving is best
// effort; failures are logged and never surface to the submission flow.
type Archiver struct {
	store storage.Store
	db    *gorm.DB
}

func NewArchiver(store storage.Store, db *gorm.DB) *Archiver {
	return &Archiver{store: store, db: db}
}

func (a *Archiver) SaveImage(ctx context.Context, png []byte, prompt, mode string, usage *api.Usage) {
	id := uuid.New()
	key := "generated/" + id.String() + ".png"

	if err := a.store.Put(ctx, key, png); err != nil {
		slog.Error("failed to archive generated image", "key", key, "error", err)
		return
	}

	var usageJSON datatypes.JSON
	if usage != nil {
		if b, err := json.Marshal(usage); err == nil {
			usageJSON = datatypes.JSON(b)
		}
	}

	record := database.GeneratedImage{
		ID:        id,
		Prompt:    prompt,
		Mode:      mode,
		ObjectKey: key,
		SizeBytes: int64(len(png)),
		Usage:     usageJSON,
		CreatedAt: time.Now(),
	}
	if err := a.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("failed to index generated image", "key", key, "error", err)
	}
}
