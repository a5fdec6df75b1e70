// Package vision describes uploaded exercise images with a multimodal
// chat model.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultModel is the multimodal model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// DefaultPrompt instructs the model when no image_prompt template is set.
const DefaultPrompt = `You are a helpful AI assistant helping a secondary school student solve math problems in French.
You are encouraging and factual.
Describe the exercise shown in the image precisely: the statement, every number, every figure and its labels.
Do not solve the exercise and do not give the answer.`

// Image is an uploaded picture of an exercise.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Config configures the vision client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
	// MaxTokens bounds the description length.
	MaxTokens int
	// MaxDimension downscales larger images before upload. Zero disables it.
	MaxDimension int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:        DefaultModel,
		Prompt:       DefaultPrompt,
		MaxTokens:    300,
		MaxDimension: 2048,
	}
}

// Client describes images through the OpenAI chat completions API.
type Client struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a vision client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required for vision")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: openai.NewClientWithConfig(config), cfg: cfg, logger: logger}, nil
}

// Describe returns a text description of img.
func (c *Client) Describe(ctx context.Context, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("%w: empty image %q", ErrImageServiceError, img.Filename)
	}

	data, contentType := c.prepare(img)
	url := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.Prompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Describe this exercise."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    url,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
	})
	if err != nil {
		return "", &ImageServiceUnavailableError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ImageServiceError{Reason: "no choices in response"}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &ImageServiceError{Reason: "empty description"}
	}
	return text, nil
}

// prepare returns the bytes to upload and their content type. Images over
// MaxDimension are downscaled and re-encoded as JPEG; anything that fails
// to decode is sent as is.
func (c *Client) prepare(img Image) ([]byte, string) {
	contentType := img.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(img.Data)
	}
	if c.cfg.MaxDimension <= 0 {
		return img.Data, contentType
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		c.logger.Debug("image config undecodable, sending original", zap.String("filename", img.Filename), zap.Error(err))
		return img.Data, contentType
	}
	if cfg.Width <= c.cfg.MaxDimension && cfg.Height <= c.cfg.MaxDimension {
		return img.Data, contentType
	}

	decoded, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		c.logger.Debug("image undecodable, sending original", zap.String("filename", img.Filename), zap.Error(err))
		return img.Data, contentType
	}
	resized := imaging.Fit(decoded, c.cfg.MaxDimension, c.cfg.MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		c.logger.Warn("re-encode image", zap.String("filename", img.Filename), zap.Error(err))
		return img.Data, contentType
	}
	c.logger.Debug("downscaled image",
		zap.String("filename", img.Filename),
		zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
	return buf.Bytes(), "image/jpeg"
}
