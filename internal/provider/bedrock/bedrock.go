// Package bedrock implements a ChatProvider over Amazon Bedrock's
// InvokeModel API for Anthropic Claude models, including response
// streaming via InvokeModelWithResponseStream.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/domain"
)

// Provider calls Amazon Bedrock's runtime API for Claude-family models.
type Provider struct {
	client *bedrockruntime.Client
	region string
	prices map[string]domain.PriceTable
}

// New builds a Provider using the default AWS credential chain.
func New(ctx context.Context, region string, prices map[string]domain.PriceTable) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithConfig(cfg, prices), nil
}

// NewWithConfig builds a Provider from a caller-supplied aws.Config
// instead of the default credential chain. New delegates to it; the
// bootstrap package calls New.
func NewWithConfig(cfg aws.Config, prices map[string]domain.PriceTable) *Provider {
	return &Provider{
		client: bedrockruntime.NewFromConfig(cfg),
		region: cfg.Region,
		prices: prices,
	}
}

func (p *Provider) Key() string { return "bedrock" }

func (p *Provider) Price(model string) (domain.PriceTable, bool) {
	pt, ok := p.prices[model]
	return pt, ok
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	AnthropicVersion string        `json:"anthropic_version,omitempty"`
	MaxTokens        int           `json:"max_tokens"`
	Messages         []wireMessage `json:"messages"`
	System           string        `json:"system,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	Content []contentBlock `json:"content"`
	Usage   wireUsage      `json:"usage"`
}

type streamChunk struct {
	Type  string       `json:"type"`
	Delta *streamDelta `json:"delta,omitempty"`
}

type streamDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var modelIDAliases = map[string]string{
	"claude-3-5-sonnet": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-opus":     "anthropic.claude-3-opus-20240229-v1:0",
	"claude-3-sonnet":   "anthropic.claude-3-sonnet-20240229-v1:0",
	"claude-3-haiku":    "anthropic.claude-3-haiku-20240307-v1:0",
}

func mapModelID(model string) string {
	if mapped, ok := modelIDAliases[model]; ok {
		return mapped
	}
	return model
}

func toWireRequest(req domain.ChatRequest) wireRequest {
	var system string
	var messages []wireMessage
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = m.Content
			continue
		}
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return wireRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         messages,
		System:           system,
	}
}

func (p *Provider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return domain.ChatResponse{}, err
	}

	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(mapModelID(req.Model)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	}

	output, err := p.client.InvokeModel(ctx, input)
	if err != nil {
		return domain.ChatResponse{}, classify.Transport(err)
	}

	var wr wireResponse
	if err := json.Unmarshal(output.Body, &wr); err != nil {
		return domain.ChatResponse{}, err
	}

	var content string
	for _, block := range wr.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	usage := domain.Usage{InputTokens: wr.Usage.InputTokens, OutputTokens: wr.Usage.OutputTokens}

	out := domain.ChatResponse{
		Content:  content,
		Usage:    usage,
		Provider: p.Key(),
		Model:    req.Model,
	}
	if pt, ok := p.Price(req.Model); ok {
		out.CostUSD = pt.InputPer1K*float64(usage.InputTokens)/1000 + pt.OutputPer1K*float64(usage.OutputTokens)/1000
	}
	return out, nil
}

func (p *Provider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.ChatDelta, <-chan error) {
	deltas := make(chan domain.ChatDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		body, err := json.Marshal(toWireRequest(req))
		if err != nil {
			errs <- err
			return
		}

		input := &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(mapModelID(req.Model)),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		}

		output, err := p.client.InvokeModelWithResponseStream(ctx, input)
		if err != nil {
			errs <- classify.Transport(err)
			return
		}

		stream := output.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			v, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal(v.Value.Bytes, &chunk); err != nil {
				continue
			}

			if chunk.Type == "content_block_delta" && chunk.Delta != nil {
				select {
				case deltas <- domain.ChatDelta{Content: chunk.Delta.Text}:
				case <-ctx.Done():
					return
				}
			}

			if chunk.Type == "message_stop" {
				select {
				case deltas <- domain.ChatDelta{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := stream.Err(); err != nil {
			errs <- classify.Transport(err)
		}
	}()

	return deltas, errs
}
