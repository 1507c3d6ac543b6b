package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagechat-backend/internal/chat"
	"imagechat-backend/internal/llm"
	"imagechat-backend/internal/orchestrator"
	pkgapi "imagechat-backend/pkg/api"
)

type fakeChatClient struct {
	turns  []llm.Turn
	result llm.ChatResult
	err    error
}

func (c *fakeChatClient) Complete(ctx context.Context, apiKey, apiBase string, turns []llm.Turn) (llm.ChatResult, error) {
	c.turns = turns
	return c.result, c.err
}

type fakeImageClient struct {
	editImages []llm.ImageFile
	editMask   *llm.ImageFile
	result     llm.ImageResult
	err        error
}

func (c *fakeImageClient) Generate(ctx context.Context, apiKey, apiBase, prompt string, opts llm.GenerateOptions) (llm.ImageResult, error) {
	return c.result, c.err
}

func (c *fakeImageClient) Edit(ctx context.Context, apiKey, apiBase, prompt string, images []llm.ImageFile, mask *llm.ImageFile) (llm.ImageResult, error) {
	c.editImages = images
	c.editMask = mask
	return c.result, c.err
}

func newTestRouter(chatClient llm.ChatClient, imageClient llm.ImageClient) (chi.Router, *chat.Store) {
	store := chat.NewStore(nil)
	orch := orchestrator.New(store, chatClient, imageClient, nil)

	router := chi.NewRouter()
	NewChatService(store, orch).AddRoutes(router)

	return router, store
}

func doJSON(t *testing.T, router chi.Router, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStateAndSettings(t *testing.T) {
	router, _ := newTestRouter(&fakeChatClient{}, &fakeImageClient{})

	rec := doJSON(t, router, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state pkgapi.StateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.False(t, state.APIKeySet)
	assert.Empty(t, state.Conversations)

	rec = doJSON(t, router, http.MethodPost, "/settings", pkgapi.Settings{
		APIKey:  "sk-test",
		APIBase: "https://proxy.example.com/v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.True(t, state.APIKeySet)
	assert.Equal(t, "https://proxy.example.com/v1", state.APIBase)
}

func TestConversationLifecycle(t *testing.T) {
	router, store := newTestRouter(&fakeChatClient{}, &fakeImageClient{})

	rec := doJSON(t, router, http.MethodPost, "/conversations", pkgapi.CreateConversationRequest{Title: "first"})
	require.Equal(t, http.StatusOK, rec.Code)

	var created pkgapi.CreateConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.ConversationID)

	rec = doJSON(t, router, http.MethodPost, "/conversations", pkgapi.CreateConversationRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var second pkgapi.CreateConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))
	assert.Equal(t, second.ConversationID, store.ActiveConversationID())

	rec = doJSON(t, router, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []pkgapi.Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&convs))
	require.Len(t, convs, 2)
	assert.Equal(t, "first", convs[0].Title)
	assert.Equal(t, chat.DefaultTitle, convs[1].Title)

	rec = doJSON(t, router, http.MethodPost, "/conversations/"+created.ConversationID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ConversationID, store.ActiveConversationID())

	rec = doJSON(t, router, http.MethodPost, "/conversations/"+created.ConversationID+"/rename", pkgapi.RenameConversationRequest{Title: "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", store.ActiveConversation().Title)

	rec = doJSON(t, router, http.MethodDelete, "/conversations/"+second.ConversationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.Conversations(), 1)
}

func TestGetMessages(t *testing.T) {
	router, store := newTestRouter(&fakeChatClient{}, &fakeImageClient{})

	id := store.CreateConversation("")
	store.AddMessage(pkgapi.Message{ID: "m1", Role: pkgapi.RoleUser, Content: "hello"})

	rec := doJSON(t, router, http.MethodGet, "/conversations/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var messages []pkgapi.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)

	// Unknown conversations yield an empty list, not an error.
	rec = doJSON(t, router, http.MethodGet, "/conversations/does-not-exist/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&messages))
	assert.Empty(t, messages)

	rec = doJSON(t, router, http.MethodGet, "/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&messages))
	assert.Len(t, messages, 1)
}

func submitForm(t *testing.T, router chi.Router, fields map[string]string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/submit", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitChat(t *testing.T) {
	chatClient := &fakeChatClient{result: llm.ChatResult{Content: "the answer"}}
	router, store := newTestRouter(chatClient, &fakeImageClient{})
	store.SetAPIKey("sk-test")

	rec := submitForm(t, router, map[string]string{"text": "a question"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pkgapi.SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "the answer", resp.Message.Content)
	assert.Equal(t, pkgapi.RoleAssistant, resp.Message.Role)

	require.Len(t, chatClient.turns, 1)
	assert.Equal(t, "a question", chatClient.turns[0].Content)
}

func TestSubmitEditWithUploads(t *testing.T) {
	imageClient := &fakeImageClient{result: llm.ImageResult{
		Data: []llm.ImageDatum{{URL: "https://example.com/out.png"}},
	}}
	router, store := newTestRouter(&fakeChatClient{}, imageClient)
	store.SetAPIKey("sk-test")

	rec := submitForm(t, router,
		map[string]string{"text": "combine"},
		map[string][]byte{"images": {1, 2, 3}, "mask": {4, 5}},
	)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, imageClient.editImages, 1)
	assert.Equal(t, []byte{1, 2, 3}, imageClient.editImages[0].Data)
	require.NotNil(t, imageClient.editMask)
	assert.Equal(t, []byte{4, 5}, imageClient.editMask.Data)
}

func TestSubmitWithoutAPIKey(t *testing.T) {
	router, _ := newTestRouter(&fakeChatClient{}, &fakeImageClient{})

	rec := submitForm(t, router, map[string]string{"text": "hello"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitUpstreamFailure(t *testing.T) {
	chatClient := &fakeChatClient{err: assert.AnError}
	router, store := newTestRouter(chatClient, &fakeImageClient{})
	store.SetAPIKey("sk-test")

	rec := submitForm(t, router, map[string]string{"text": "hello"}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
