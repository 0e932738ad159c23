// Package gemini 以 Google Generative AI SDK 實作模型提供者
package gemini

import (
	"context"
	"fmt"
	"strings"

	"recipe-ingest/internal/core/ai/provider"
	"recipe-ingest/internal/infrastructure/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client Gemini 客戶端
type Client struct {
	client *genai.Client
	cfg    config.ModelConfig
}

// NewClient 創建 Gemini 客戶端
func NewClient(ctx context.Context, apiKey string, cfg config.ModelConfig) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// GetModel 獲取模型名稱
func (c *Client) GetModel() string {
	return c.cfg.Model
}

// model 每次請求建立自己的模型設定，避免並行請求共用系統指令
func (c *Client) model(req *provider.Request, system *genai.Content) *genai.GenerativeModel {
	m := c.client.GenerativeModel(c.cfg.Model)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = system

	temperature := c.cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	m.SetTemperature(float32(temperature))

	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}
	if len(req.Stop) > 0 {
		m.StopSequences = req.Stop
	}
	return m
}

// splitMessages system 訊息合併為系統指令，其餘訊息作為內容
func splitMessages(msgs []provider.Message) (*genai.Content, []genai.Part) {
	var system []genai.Part
	parts := make([]genai.Part, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			system = append(system, genai.Text(m.Content))
			continue
		}
		parts = append(parts, genai.Text(m.Content))
	}
	if len(system) == 0 {
		return nil, parts
	}
	return &genai.Content{Parts: system}, parts
}

// Generate 發送請求並回傳第一個候選結果
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	system, parts := splitMessages(req.Messages)
	if len(parts) == 0 {
		return nil, fmt.Errorf("gemini generate: request has no user content")
	}

	resp, err := c.model(req, system).GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, provider.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if text, ok := p.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, provider.ErrEmptyResponse
	}

	out := &provider.Response{Content: sb.String(), Model: c.cfg.Model}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = provider.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Close 關閉底層連接
func (c *Client) Close() error {
	return c.client.Close()
}
