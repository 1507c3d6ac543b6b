package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"imagechat-backend/internal/storage"
)

const (
	// SnapshotKey is the storage key of the serialized state snapshot.
	SnapshotKey = "imagechat-state"

	// imageSlotPrefix namespaces the per-image side slots in the backend.
	imageSlotPrefix = "imagechat-img-"

	dataURLPrefix = "data:"
)

var placeholderPattern = regexp.MustCompile(`^\[image-data:(.+)\]$`)

// Codec turns store snapshots into a storable form and back. Inline base64
// image payloads are moved to per-image slots keyed by message id and image
// index, so the snapshot itself stays small regardless of image sizes.
// External image URLs pass through untouched.
type Codec struct {
	backend storage.Store
}

func NewCodec(backend storage.Store) *Codec {
	return &Codec{backend: backend}
}

func slotKey(messageID string, index int) string {
	return messageID + "-" + strconv.Itoa(index)
}

// Encode serializes the snapshot, side-storing inline image data. The
// snapshot must be owned by the caller; image URLs are rewritten in place.
// Slot write failures are logged and leave an unrecoverable placeholder.
func (c *Codec) Encode(ctx context.Context, snap Snapshot) ([]byte, error) {
	for ci := range snap.Conversations {
		conv := &snap.Conversations[ci]
		for mi := range conv.Messages {
			msg := &conv.Messages[mi]
			for ii := range msg.Images {
				img := &msg.Images[ii]
				if !strings.HasPrefix(img.URL, dataURLPrefix) {
					continue
				}

				key := slotKey(msg.ID, ii)
				if err := c.backend.Put(ctx, imageSlotPrefix+key, []byte(img.URL)); err != nil {
					slog.Error("failed to side-store image data", "key", key, "error", err)
				}
				img.URL = fmt.Sprintf("[image-data:%s]", key)
			}
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot and resolves image placeholders from their
// slots. A missing or unreadable slot leaves the placeholder in place; the
// image renders as broken rather than failing the load.
func (c *Codec) Decode(ctx context.Context, data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse state snapshot: %w", err)
	}

	for ci := range snap.Conversations {
		conv := &snap.Conversations[ci]
		for mi := range conv.Messages {
			msg := &conv.Messages[mi]
			for ii := range msg.Images {
				img := &msg.Images[ii]
				match := placeholderPattern.FindStringSubmatch(img.URL)
				if match == nil {
					continue
				}

				stored, err := c.backend.Get(ctx, imageSlotPrefix+match[1])
				if err != nil {
					slog.Warn("image slot missing, leaving placeholder", "key", match[1], "error", err)
					continue
				}
				img.URL = string(stored)
			}
		}
	}

	return snap, nil
}
