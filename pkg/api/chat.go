package api

type Settings struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
}

type StateResponse struct {
	APIKeySet            bool           `json:"api_key_set"`
	APIBase              string         `json:"api_base"`
	Conversations        []Conversation `json:"conversations"`
	ActiveConversationID string         `json:"active_conversation_id,omitempty"`
	IsLoading            bool           `json:"is_loading"`
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

type RenameConversationRequest struct {
	Title string `json:"title"`
}

// SubmitParams are the non-file fields of the multipart submit request.
// Generate forces image-generation mode when no images are attached.
type SubmitParams struct {
	Text       string `schema:"text"`
	Generate   bool   `schema:"generate"`
	Size       string `schema:"size"`
	Quality    string `schema:"quality"`
	Background string `schema:"background"`
}

type SubmitResponse struct {
	Message Message `json:"message"`
}
