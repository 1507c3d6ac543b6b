package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"imagechat-backend/internal/archive"
	"imagechat-backend/internal/chat"
	"imagechat-backend/internal/database"
	"imagechat-backend/internal/llm"
	"imagechat-backend/pkg/api"
)

// defaultPrompt stands in when an image generation is requested with no
// text.
const defaultPrompt = "Describe these images"

var (
	ErrMissingAPIKey = errors.New("API key is not configured")
	ErrMissingPrompt = errors.New("a text prompt is required")
)

// Submission is one user turn: text plus any uploaded images and an optional
// mask, already read into memory in upload order. Generate forces
// image-generation mode when no images are attached.
type Submission struct {
	Text     string
	Images   []llm.ImageFile
	Mask     *llm.ImageFile
	Generate bool

	Size       string
	Quality    string
	Background string
}

// Orchestrator turns submissions into outbound API calls and maps the
// responses back into conversation messages. One submission runs at a time;
// the store's loading flag advertises this to the UI but nothing enforces it.
type Orchestrator struct {
	store    *chat.Store
	chat     llm.ChatClient
	images   llm.ImageClient
	archiver *archive.Archiver
}

func New(store *chat.Store, chatClient llm.ChatClient, imageClient llm.ImageClient, archiver *archive.Archiver) *Orchestrator {
	return &Orchestrator{
		store:    store,
		chat:     chatClient,
		images:   imageClient,
		archiver: archiver,
	}
}

// Submit appends the user message, calls the endpoint selected by the input
// shape and appends the assistant reply. On API failure the user message
// stays in place and the error carries the user-visible message.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (api.Message, error) {
	apiKey := o.store.APIKey()
	if apiKey == "" {
		return api.Message{}, ErrMissingAPIKey
	}

	if sub.Text == "" && len(sub.Images) > 0 {
		return api.Message{}, ErrMissingPrompt
	}
	if sub.Text == "" && !sub.Generate {
		return api.Message{}, ErrMissingPrompt
	}

	apiBase := o.store.APIBase()

	o.store.SetLoading(true)
	defer o.store.SetLoading(false)

	if o.store.ActiveConversationID() == "" {
		o.store.CreateConversation("")
	}

	o.store.AddMessage(buildUserMessage(sub))

	start := time.Now()

	var reply api.Message
	var err error
	switch {
	case len(sub.Images) > 0:
		reply, err = o.submitEdit(ctx, apiKey, apiBase, sub)
	case sub.Generate:
		reply, err = o.submitGeneration(ctx, apiKey, apiBase, sub)
	default:
		reply, err = o.submitChat(ctx, apiKey, apiBase)
	}
	if err != nil {
		return api.Message{}, err
	}

	reply.ID = uuid.NewString()
	reply.Role = api.RoleAssistant
	reply.Timestamp = time.Now().UnixMilli()
	reply.ElapsedMs = time.Since(start).Milliseconds()

	o.store.AddMessage(reply)

	return reply, nil
}

func buildUserMessage(sub Submission) api.Message {
	var images []api.MessageImage
	for i, img := range sub.Images {
		images = append(images, api.MessageImage{
			URL: dataURL(img),
			Alt: fmt.Sprintf("Uploaded image %d", i+1),
		})
	}

	return api.Message{
		ID:        uuid.NewString(),
		Role:      api.RoleUser,
		Content:   sub.Text,
		Images:    images,
		Timestamp: time.Now().UnixMilli(),
	}
}

func dataURL(img llm.ImageFile) string {
	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// submitChat sends the full message history of the active conversation,
// including the just-appended user turn, as (role, content) pairs.
func (o *Orchestrator) submitChat(ctx context.Context, apiKey, apiBase string) (api.Message, error) {
	var turns []llm.Turn
	for _, msg := range o.store.ActiveMessages() {
		turns = append(turns, llm.Turn{Role: msg.Role, Content: msg.Content})
	}

	result, err := o.chat.Complete(ctx, apiKey, apiBase, turns)
	if err != nil {
		return api.Message{}, err
	}

	return api.Message{Content: result.Content, Usage: result.Usage}, nil
}

func (o *Orchestrator) submitGeneration(ctx context.Context, apiKey, apiBase string, sub Submission) (api.Message, error) {
	prompt := sub.Text
	if prompt == "" {
		prompt = defaultPrompt
	}

	opts := llm.GenerateOptions{
		Size:       sub.Size,
		Quality:    sub.Quality,
		Background: sub.Background,
	}

	result, err := o.images.Generate(ctx, apiKey, apiBase, prompt, opts)
	if err != nil {
		return api.Message{}, err
	}

	return o.imageReply(ctx, result, prompt, database.ImageModeGenerate), nil
}

func (o *Orchestrator) submitEdit(ctx context.Context, apiKey, apiBase string, sub Submission) (api.Message, error) {
	mode := database.ImageModeEdit
	if sub.Mask != nil {
		mode = database.ImageModeMaskedEdit
	}

	result, err := o.images.Edit(ctx, apiKey, apiBase, sub.Text, sub.Images, sub.Mask)
	if err != nil {
		return api.Message{}, err
	}

	return o.imageReply(ctx, result, sub.Text, mode), nil
}

// imageReply maps the endpoint's data array to message images, preferring
// inline base64 payloads over hosted URLs, and archives every inline image.
func (o *Orchestrator) imageReply(ctx context.Context, result llm.ImageResult, prompt, mode string) api.Message {
	var images []api.MessageImage
	for i, item := range result.Data {
		alt := fmt.Sprintf("Generated image %d", i+1)
		switch {
		case item.B64JSON != "":
			images = append(images, api.MessageImage{
				URL: "data:image/png;base64," + item.B64JSON,
				Alt: alt,
			})
			if o.archiver != nil {
				if png, err := base64.StdEncoding.DecodeString(item.B64JSON); err == nil {
					o.archiver.SaveImage(ctx, png, prompt, mode, result.Usage)
				}
			}
		case item.URL != "":
			images = append(images, api.MessageImage{URL: item.URL, Alt: alt})
		}
	}

	return api.Message{
		Images:  images,
		Created: result.Created,
		Usage:   result.Usage,
	}
}
