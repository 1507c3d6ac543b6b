package chat

import (
	"context"
	"errors"
	"log/slog"

	"imagechat-backend/internal/storage"
)

// StatePersister writes snapshots through the codec to the storage backend.
// A failed snapshot write triggers one recovery pass: clear the whole backend
// and retry once. Errors never reach the store; state stays usable in memory
// even when it cannot be made durable.
type StatePersister struct {
	backend storage.Store
	codec   *Codec
}

var _ Persister = (*StatePersister)(nil)

func NewStatePersister(backend storage.Store) *StatePersister {
	return &StatePersister{
		backend: backend,
		codec:   NewCodec(backend),
	}
}

func (p *StatePersister) Save(snap Snapshot) {
	ctx := context.Background()

	data, err := p.encode(ctx, snap)
	if err != nil {
		slog.Error("failed to encode state snapshot", "error", err)
		return
	}

	err = p.backend.Put(ctx, SnapshotKey, data)
	if err == nil {
		return
	}
	slog.Error("failed to write state snapshot, clearing storage and retrying", "error", err)

	if err := p.backend.Clear(ctx); err != nil {
		slog.Error("failed to clear storage during write recovery", "error", err)
		return
	}

	// Clearing wiped the image slots written by the first encode; encode
	// again so the retried snapshot's placeholders stay resolvable.
	data, err = p.encode(ctx, snap)
	if err != nil {
		slog.Error("failed to re-encode state snapshot after clearing storage", "error", err)
		return
	}

	if err := p.backend.Put(ctx, SnapshotKey, data); err != nil {
		slog.Error("state snapshot write failed after clearing storage", "error", err)
	}
}

// encode serializes a copy of the snapshot so Save can encode the same
// snapshot more than once; Encode rewrites image URLs in place.
func (p *StatePersister) encode(ctx context.Context, snap Snapshot) ([]byte, error) {
	snap.Conversations = copyConversations(snap.Conversations)
	return p.codec.Encode(ctx, snap)
}

// Load reads the persisted snapshot. A missing, corrupt or unreadable
// snapshot yields empty state, never an error.
func (p *StatePersister) Load(ctx context.Context) Snapshot {
	data, err := p.backend.Get(ctx, SnapshotKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("failed to read state snapshot, starting empty", "error", err)
		}
		return Snapshot{}
	}

	snap, err := p.codec.Decode(ctx, data)
	if err != nil {
		slog.Error("corrupt state snapshot, starting empty", "error", err)
		return Snapshot{}
	}

	return snap
}
