package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the model answers without any content
var ErrEmptyResponse = errors.New("no response from vision API")

// chatClient is the part of the OpenAI client the extractor uses
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the extractor settings
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxPages int
	Timeout  time.Duration
}

// Extractor implements port.ReceiptExtractor with an OpenAI vision model
type Extractor struct {
	client   chatClient
	model    string
	maxPages int
	prompts  *PromptConfig
	render   pageRenderer
	logger   *zap.Logger
}

// NewExtractor creates a new OpenAI receipt extractor
func NewExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return newExtractor(openai.NewClientWithConfig(clientCfg), cfg, prompts, logger)
}

func newExtractor(client chatClient, cfg Config, prompts *PromptConfig, logger *zap.Logger) *Extractor {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 4
	}
	return &Extractor{
		client:   client,
		model:    cfg.Model,
		maxPages: cfg.MaxPages,
		prompts:  prompts,
		render:   renderPDF,
		logger:   logger,
	}
}

// Extract sends the receipt pages to the vision model and returns its JSON answer.
// The answer is not validated here; callers parse it leniently.
func (e *Extractor) Extract(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
	pages, err := expandPages(images, e.render, e.maxPages, e.logger)
	if err != nil {
		return nil, fmt.Errorf("prepare pages: %w", err)
	}

	e.logger.Info("Extracting receipt with Vision API", zap.Int("pages", len(pages)), zap.String("model", e.model))

	p := e.prompts.ReceiptExtraction
	prompt, err := renderTemplate(p.UserTemplate, map[string]interface{}{"Pages": len(pages)})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, page := range pages {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", page.MimeType, base64.StdEncoding.EncodeToString(page.Data)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	if jsonStr := extractJSON(content); jsonStr != "" {
		content = jsonStr
	}

	e.logger.Info("Receipt read by Vision API",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return []byte(content), nil
}

// extractJSON returns the first balanced JSON object in content, or "" when there is none.
// Models sometimes wrap the object in markdown fences or prose.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONEnd finds the end of the object starting at start
func findJSONEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' && inString {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}

// Verify interface compliance
var _ port.ReceiptExtractor = (*Extractor)(nil)
