package openai

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockChatClient struct {
	createFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	requests   []openai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, req)
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return answer(`{"supplier_name": "ABC"}`), nil
}

func answer(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func jpegImage(name string) port.ReceiptImage {
	return port.ReceiptImage{Name: name, MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}

func TestExtract_BuildsVisionRequest(t *testing.T) {
	client := &mockChatClient{}
	ex := newExtractor(client, Config{Model: "gpt-4o"}, nil, zap.NewNop())

	raw, err := ex.Extract(context.Background(), []port.ReceiptImage{jpegImage("a.jpg"), jpegImage("b.jpg")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"supplier_name": "ABC"}`, string(raw))

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)

	parts := req.Messages[1].MultiContent
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, "2 imagen(es)")
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,"))
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
}

func TestExtract_StripsFences(t *testing.T) {
	client := &mockChatClient{createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return answer("Aquí está:\n```json\n{\"total\": 10, \"note\": \"llave } dentro\"}\n```"), nil
	}}
	ex := newExtractor(client, Config{}, nil, zap.NewNop())

	raw, err := ex.Extract(context.Background(), []port.ReceiptImage{jpegImage("a.jpg")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 10, "note": "llave } dentro"}`, string(raw))
}

func TestExtract_Errors(t *testing.T) {
	apiErr := errors.New("rate limited")
	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
		err  error
		want error
	}{
		{"api error", openai.ChatCompletionResponse{}, apiErr, apiErr},
		{"no choices", openai.ChatCompletionResponse{}, nil, ErrEmptyResponse},
		{"blank content", answer("  "), nil, ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockChatClient{createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return tt.resp, tt.err
			}}
			ex := newExtractor(client, Config{}, nil, zap.NewNop())

			_, err := ex.Extract(context.Background(), []port.ReceiptImage{jpegImage("a.jpg")})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ex := newExtractor(&mockChatClient{}, Config{}, nil, zap.NewNop())
	_, err := ex.Extract(context.Background(), nil)
	assert.Error(t, err)
}

func TestExpandPages(t *testing.T) {
	page := image.NewRGBA(image.Rect(0, 0, 4, 4))
	page.Set(1, 1, color.White)

	render := func(data []byte, maxPages int) ([]image.Image, error) {
		n := 3
		if maxPages > 0 && maxPages < n {
			n = maxPages
		}
		out := make([]image.Image, n)
		for i := range out {
			out[i] = page
		}
		return out, nil
	}

	images := []port.ReceiptImage{
		jpegImage("first.jpg"),
		{Name: "factura.pdf", MimeType: pdfMimeType, Data: []byte("%PDF")},
	}

	pages, err := expandPages(images, render, 3, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "first.jpg", pages[0].Name)
	assert.Equal(t, "factura.pdf#1", pages[1].Name)
	assert.Equal(t, "image/jpeg", pages[2].MimeType)
	assert.NotEmpty(t, pages[2].Data)

	failing := func(data []byte, maxPages int) ([]image.Image, error) {
		return nil, errors.New("corrupt")
	}
	_, err = expandPages(images, failing, 3, zap.NewNop())
	assert.ErrorContains(t, err, "factura.pdf")
}

func TestLoadPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "receipt_extraction:\n  temperature: 0.3\n  system: \"Solo JSON\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.3), prompts.ReceiptExtraction.Temperature)
	assert.Equal(t, "Solo JSON", prompts.ReceiptExtraction.System)
	assert.Equal(t, 4096, prompts.ReceiptExtraction.MaxTokens, "missing keys keep defaults")
	assert.Equal(t, defaultUserTemplate, prompts.ReceiptExtraction.UserTemplate)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("receipt_extraction:\n  user_template: \"{{.Pages\"\n"), 0644))
	_, err = LoadPrompts(bad)
	assert.Error(t, err)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
