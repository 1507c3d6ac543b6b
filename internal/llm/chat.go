package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"imagechat-backend/pkg/api"
)

const (
	chatModel       = "gpt-4o"
	chatTemperature = 0.7
	chatMaxTokens   = 1000

	// DefaultAPIBase is used when the stored settings leave the base empty.
	DefaultAPIBase = "https://api.openai.com/v1"
)

// Turn is one (role, content) pair of the chat history sent to the
// completion endpoint.
type Turn struct {
	Role    string
	Content string
}

type ChatResult struct {
	Content string
	Usage   *api.Usage
}

// ChatClient is the outbound chat-completion boundary. Credentials are per
// call because the user can change them between submissions.
type ChatClient interface {
	Complete(ctx context.Context, apiKey, apiBase string, turns []Turn) (ChatResult, error)
}

type OpenAIChatClient struct{}

var _ ChatClient = (*OpenAIChatClient)(nil)

func NewOpenAIChatClient() *OpenAIChatClient {
	return &OpenAIChatClient{}
}

func normalizeBase(apiBase string) string {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	return apiBase
}

func (c *OpenAIChatClient) Complete(ctx context.Context, apiKey, apiBase string, turns []Turn) (ChatResult, error) {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(normalizeBase(apiBase)),
	)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == api.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	chatOpts := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       chatModel,
		Temperature: openai.Float(chatTemperature),
		MaxTokens:   openai.Int(chatMaxTokens),
	}

	res, err := client.Chat.Completions.New(ctx, chatOpts)
	if err != nil {
		slog.Error("openai error: chat completions failed", "error", err)
		return ChatResult{}, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(res.Choices) == 0 {
		return ChatResult{}, fmt.Errorf("chat completion returned no choices")
	}

	result := ChatResult{Content: res.Choices[0].Message.Content}
	if res.Usage.TotalTokens > 0 {
		result.Usage = &api.Usage{
			InputTokens:  int(res.Usage.PromptTokens),
			OutputTokens: int(res.Usage.CompletionTokens),
			TotalTokens:  int(res.Usage.TotalTokens),
		}
	}

	return result, nil
}
