package api

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

// MessageImage is a single image attached to a message. URL is either an
// external http(s) URL or an inline base64 data URL.
type MessageImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type UsageDetails struct {
	TextTokens  int `json:"text_tokens"`
	ImageTokens int `json:"image_tokens"`
}

// Usage is the token accounting reported by the chat and image endpoints.
type Usage struct {
	InputTokens        int           `json:"input_tokens"`
	OutputTokens       int           `json:"output_tokens"`
	TotalTokens        int           `json:"total_tokens"`
	InputTokensDetails *UsageDetails `json:"input_tokens_details,omitempty"`
}

// Message is one user or assistant turn. Timestamp is client-side creation
// time in unix milliseconds; Created is the server-reported generation time
// (unix seconds) for image responses.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Images    []MessageImage `json:"images,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Created   int64          `json:"created,omitempty"`
	ElapsedMs int64          `json:"elapsed_time,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}
