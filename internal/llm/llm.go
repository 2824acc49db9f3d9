package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/casecoach/internal/llm/prompts"
	"github.com/pavelanni/casecoach/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DebriefRequest describes the finished interview to review.
type DebriefRequest struct {
	Variant    prompts.Variant
	Title      string
	Category   string
	Summary    string
	Score      int
	HintsUsed  int
	Milestones []string
	Messages   []model.Message
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM list models: %w", err)
	}
	return nil
}

// Debrief asks the model for a review of the transcript. The score is passed
// for context only and is never changed by the result.
func (c *Client) Debrief(ctx context.Context, req DebriefRequest) (*model.Debrief, error) {
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, err
	}
	variant := req.Variant
	if variant == "" {
		variant = prompts.VariantStandard
	}
	systemPrompt, err := prompts.BuildDebriefPrompt(variant, prompts.DebriefData{
		Title:      req.Title,
		Category:   req.Category,
		Summary:    req.Summary,
		Score:      req.Score,
		HintsUsed:  req.HintsUsed,
		Milestones: req.Milestones,
	})
	if err != nil {
		return nil, fmt.Errorf("build debrief prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.Transcript(req.Messages)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM debrief response", "raw", raw)

	var result model.Debrief
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	result.Strengths = compact(result.Strengths)
	result.Improvements = compact(result.Improvements)
	return &result, nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
