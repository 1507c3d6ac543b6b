package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagechat-backend/internal/storage"
	"imagechat-backend/pkg/api"
)

type memStore struct {
	data    map[string][]byte
	putErr  error
	puts    int
	clears  int
	deletes int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (s *memStore) Put(ctx context.Context, key string, value []byte) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.deletes++
	delete(s.data, key)
	return nil
}

func (s *memStore) Clear(ctx context.Context) error {
	s.clears++
	s.data = map[string][]byte{}
	return nil
}

func imageSnapshot(url string) Snapshot {
	return Snapshot{
		APIKey: "sk-test",
		Conversations: []api.Conversation{{
			ID:    "c1",
			Title: "images",
			Messages: []api.Message{{
				ID:      "m1",
				Role:    api.RoleAssistant,
				Images:  []api.MessageImage{{URL: url, Alt: "Generated image 1"}},
				Content: "",
			}},
		}},
		ActiveConversationID: "c1",
	}
}

func TestCodecRoundTripRestoresImageData(t *testing.T) {
	ctx := context.Background()
	backend := newMemStore()
	codec := NewCodec(backend)

	payload := "data:image/png;base64," + strings.Repeat("A", 4096)

	data, err := codec.Encode(ctx, imageSnapshot(payload))
	require.NoError(t, err)

	decoded, err := codec.Decode(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, payload, decoded.Conversations[0].Messages[0].Images[0].URL)
	assert.Equal(t, "sk-test", decoded.APIKey)
	assert.Equal(t, "c1", decoded.ActiveConversationID)
}

func TestEncodeKeepsSnapshotSmall(t *testing.T) {
	ctx := context.Background()
	backend := newMemStore()
	codec := NewCodec(backend)

	payload := "data:image/png;base64," + strings.Repeat("A", 1<<20)

	data, err := codec.Encode(ctx, imageSnapshot(payload))
	require.NoError(t, err)

	assert.Less(t, len(data), 2048)
	assert.NotContains(t, string(data), strings.Repeat("A", 64))
	assert.Contains(t, string(data), "[image-data:m1-0]")

	stored, ok := backend.data[imageSlotPrefix+"m1-0"]
	require.True(t, ok)
	assert.Equal(t, payload, string(stored))
}

func TestDecodeLeavesPlaceholderWhenSlotMissing(t *testing.T) {
	ctx := context.Background()
	backend := newMemStore()
	codec := NewCodec(backend)

	data, err := codec.Encode(ctx, imageSnapshot("data:image/png;base64,AAAA"))
	require.NoError(t, err)

	delete(backend.data, imageSlotPrefix+"m1-0")

	decoded, err := codec.Decode(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, "[image-data:m1-0]", decoded.Conversations[0].Messages[0].Images[0].URL)
}

func TestExternalUrlsPassThrough(t *testing.T) {
	ctx := context.Background()
	backend := newMemStore()
	codec := NewCodec(backend)

	data, err := codec.Encode(ctx, imageSnapshot("https://example.com/image.png"))
	require.NoError(t, err)

	assert.Empty(t, backend.data)

	decoded, err := codec.Decode(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/image.png", decoded.Conversations[0].Messages[0].Images[0].URL)
}

func TestDecodeRejectsCorruptSnapshot(t *testing.T) {
	codec := NewCodec(newMemStore())

	_, err := codec.Decode(context.Background(), []byte("not json"))
	assert.Error(t, err)
}
