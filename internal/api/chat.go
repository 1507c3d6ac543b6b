package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"imagechat-backend/internal/chat"
	"imagechat-backend/internal/llm"
	"imagechat-backend/internal/orchestrator"
	"imagechat-backend/pkg/api"
)

const maxSubmitBytes = 64 << 20

// ChatService exposes the conversation store and the submission flow over
// HTTP.
type ChatService struct {
	store *chat.Store
	orch  *orchestrator.Orchestrator
}

func NewChatService(store *chat.Store, orch *orchestrator.Orchestrator) *ChatService {
	return &ChatService{store: store, orch: orch}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Get("/state", RestHandler(s.GetState))
	r.Post("/settings", RestHandler(s.UpdateSettings))

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetConversations))
		r.Post("/", RestHandler(s.CreateConversation))
		r.Post("/{conversation_id}/activate", RestHandler(s.ActivateConversation))
		r.Post("/{conversation_id}/rename", RestHandler(s.RenameConversation))
		r.Delete("/{conversation_id}", RestHandler(s.DeleteConversation))
		r.Post("/{conversation_id}/clear", RestHandler(s.ClearConversation))
		r.Get("/{conversation_id}/messages", RestHandler(s.GetConversationMessages))
	})

	r.Get("/messages", RestHandler(s.GetActiveMessages))
	r.Post("/submit", RestHandler(s.Submit))
}

func urlParamConversationID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "conversation_id")
	if id == "" {
		return "", CodedErrorf(http.StatusBadRequest, "missing {conversation_id} url parameter")
	}
	return id, nil
}

func (s *ChatService) GetState(r *http.Request) (any, error) {
	return api.StateResponse{
		APIKeySet:            s.store.APIKey() != "",
		APIBase:              s.store.APIBase(),
		Conversations:        s.store.Conversations(),
		ActiveConversationID: s.store.ActiveConversationID(),
		IsLoading:            s.store.IsLoading(),
	}, nil
}

func (s *ChatService) UpdateSettings(r *http.Request) (any, error) {
	req, err := ParseRequest[api.Settings](r)
	if err != nil {
		return nil, err
	}

	s.store.SetAPIKey(req.APIKey)
	s.store.SetAPIBase(req.APIBase)

	return nil, nil
}

func (s *ChatService) GetConversations(r *http.Request) (any, error) {
	return s.store.Conversations(), nil
}

func (s *ChatService) CreateConversation(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateConversationRequest](r)
	if err != nil {
		return nil, err
	}

	id := s.store.CreateConversation(req.Title)

	return api.CreateConversationResponse{ConversationID: id}, nil
}

func (s *ChatService) ActivateConversation(r *http.Request) (any, error) {
	id, err := urlParamConversationID(r)
	if err != nil {
		return nil, err
	}

	s.store.SetActiveConversation(id)

	return nil, nil
}

func (s *ChatService) RenameConversation(r *http.Request) (any, error) {
	id, err := urlParamConversationID(r)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.RenameConversationRequest](r)
	if err != nil {
		return nil, err
	}

	s.store.UpdateConversationTitle(id, req.Title)

	return nil, nil
}

func (s *ChatService) DeleteConversation(r *http.Request) (any, error) {
	id, err := urlParamConversationID(r)
	if err != nil {
		return nil, err
	}

	s.store.DeleteConversation(id)

	return nil, nil
}

func (s *ChatService) ClearConversation(r *http.Request) (any, error) {
	id, err := urlParamConversationID(r)
	if err != nil {
		return nil, err
	}

	s.store.ClearMessages(id)

	return nil, nil
}

func (s *ChatService) GetConversationMessages(r *http.Request) (any, error) {
	id, err := urlParamConversationID(r)
	if err != nil {
		return nil, err
	}

	messages := s.store.Messages(id)
	if messages == nil {
		messages = []api.Message{}
	}
	return messages, nil
}

func (s *ChatService) GetActiveMessages(r *http.Request) (any, error) {
	return s.store.ActiveMessages(), nil
}

func (s *ChatService) Submit(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(maxSubmitBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}

	var params api.SubmitParams
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&params, r.MultipartForm.Value); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse submit parameters: %v", err)
	}

	images, err := readImageFiles(r.MultipartForm.File["images"])
	if err != nil {
		return nil, err
	}

	var mask *llm.ImageFile
	if maskHeaders := r.MultipartForm.File["mask"]; len(maskHeaders) > 0 {
		masks, err := readImageFiles(maskHeaders[:1])
		if err != nil {
			return nil, err
		}
		mask = &masks[0]
	}

	message, err := s.orch.Submit(r.Context(), orchestrator.Submission{
		Text:       params.Text,
		Images:     images,
		Mask:       mask,
		Generate:   params.Generate,
		Size:       params.Size,
		Quality:    params.Quality,
		Background: params.Background,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrMissingAPIKey) || errors.Is(err, orchestrator.ErrMissingPrompt) {
			return nil, CodedError(http.StatusBadRequest, err)
		}
		return nil, CodedError(http.StatusBadGateway, err)
	}

	return api.SubmitResponse{Message: message}, nil
}

func readImageFiles(headers []*multipart.FileHeader) ([]llm.ImageFile, error) {
	var files []llm.ImageFile
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "unable to open uploaded file %s: %v", header.Filename, err)
		}

		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, CodedError(http.StatusInternalServerError, fmt.Errorf("unable to read uploaded file %s: %w", header.Filename, err))
		}

		files = append(files, llm.ImageFile{
			Name: header.Filename,
			MIME: header.Header.Get("Content-Type"),
			Data: data,
		})
	}
	return files, nil
}
