package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"imagechat-backend/pkg/api"
)

const imageModel = "gpt-image-1"

// ImageFile is one uploaded image or mask, fully read into memory.
type ImageFile struct {
	Name string
	MIME string
	Data []byte
}

// ImageDatum is one item of the image endpoint's data array; exactly one of
// B64JSON or URL is set.
type ImageDatum struct {
	B64JSON string `json:"b64_json,omitempty"`
	URL     string `json:"url,omitempty"`
}

type ImageResult struct {
	Created int64
	Data    []ImageDatum
	Usage   *api.Usage
}

type GenerateOptions struct {
	Size       string
	Quality    string
	Background string
}

// ImageClient is the outbound boundary to the gpt-image-1 endpoints.
type ImageClient interface {
	Generate(ctx context.Context, apiKey, apiBase, prompt string, opts GenerateOptions) (ImageResult, error)

	// Edit sends all images when mask is nil, or exactly the first image
	// plus the mask otherwise.
	Edit(ctx context.Context, apiKey, apiBase, prompt string, images []ImageFile, mask *ImageFile) (ImageResult, error)
}

type RestyImageClient struct {
	client *resty.Client
}

var _ ImageClient = (*RestyImageClient)(nil)

func NewRestyImageClient() *RestyImageClient {
	return &RestyImageClient{client: resty.New()}
}

type imageUsageDetails struct {
	TextTokens  int `json:"text_tokens"`
	ImageTokens int `json:"image_tokens"`
}

type imageUsage struct {
	InputTokens        int                `json:"input_tokens"`
	OutputTokens       int                `json:"output_tokens"`
	TotalTokens        int                `json:"total_tokens"`
	InputTokensDetails *imageUsageDetails `json:"input_tokens_details"`
}

type imageResponse struct {
	Created int64        `json:"created"`
	Data    []ImageDatum `json:"data"`
	Usage   *imageUsage  `json:"usage"`
}

func (r *imageResponse) toResult() ImageResult {
	result := ImageResult{Created: r.Created, Data: r.Data}
	if r.Usage != nil {
		usage := &api.Usage{
			InputTokens:  r.Usage.InputTokens,
			OutputTokens: r.Usage.OutputTokens,
			TotalTokens:  r.Usage.TotalTokens,
		}
		if r.Usage.InputTokensDetails != nil {
			usage.InputTokensDetails = &api.UsageDetails{
				TextTokens:  r.Usage.InputTokensDetails.TextTokens,
				ImageTokens: r.Usage.InputTokensDetails.ImageTokens,
			}
		}
		result.Usage = usage
	}
	return result
}

// apiErrorMessage extracts the error string from an OpenAI-style failure
// payload, which is either {"error": "..."} or {"error": {"message": "..."}}.
func apiErrorMessage(body []byte, status int) string {
	var wrapper struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Error) > 0 {
		var msg string
		if json.Unmarshal(wrapper.Error, &msg) == nil && msg != "" {
			return msg
		}

		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(wrapper.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}

	return fmt.Sprintf("image API returned status %d", status)
}

func (c *RestyImageClient) Generate(ctx context.Context, apiKey, apiBase, prompt string, opts GenerateOptions) (ImageResult, error) {
	if opts.Size == "" {
		opts.Size = "auto"
	}
	if opts.Quality == "" {
		opts.Quality = "auto"
	}

	body := map[string]any{
		"model":   imageModel,
		"prompt":  prompt,
		"size":    opts.Size,
		"quality": opts.Quality,
	}
	if opts.Background != "" {
		body["background"] = opts.Background
	}

	var result imageResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(body).
		SetResult(&result).
		Post(normalizeBase(apiBase) + "images/generations")
	if err != nil {
		slog.Error("image generation request failed", "error", err)
		return ImageResult{}, fmt.Errorf("image generation failed: %w", err)
	}
	if resp.IsError() {
		return ImageResult{}, fmt.Errorf("%s", apiErrorMessage(resp.Body(), resp.StatusCode()))
	}

	return result.toResult(), nil
}

func (c *RestyImageClient) Edit(ctx context.Context, apiKey, apiBase, prompt string, images []ImageFile, mask *ImageFile) (ImageResult, error) {
	if len(images) == 0 {
		return ImageResult{}, fmt.Errorf("image edit requires at least one image")
	}

	if mask != nil {
		// Masked edits operate on a single base image.
		images = images[:1]
	}

	fields := make([]*resty.MultipartField, 0, len(images)+1)
	for _, img := range images {
		fields = append(fields, &resty.MultipartField{
			Param:       "image[]",
			FileName:    img.Name,
			ContentType: img.MIME,
			Reader:      bytes.NewReader(img.Data),
		})
	}
	if mask != nil {
		fields = append(fields, &resty.MultipartField{
			Param:       "mask",
			FileName:    mask.Name,
			ContentType: mask.MIME,
			Reader:      bytes.NewReader(mask.Data),
		})
	}

	var result imageResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetMultipartFormData(map[string]string{
			"model":  imageModel,
			"prompt": prompt,
		}).
		SetMultipartFields(fields...).
		SetResult(&result).
		Post(normalizeBase(apiBase) + "images/edits")
	if err != nil {
		slog.Error("image edit request failed", "error", err)
		return ImageResult{}, fmt.Errorf("image edit failed: %w", err)
	}
	if resp.IsError() {
		return ImageResult{}, fmt.Errorf("%s", apiErrorMessage(resp.Body(), resp.StatusCode()))
	}

	return result.toResult(), nil
}
