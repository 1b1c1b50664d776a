// Package openai implements an OpenAI-compatible ChatProvider over the
// /chat/completions REST API, including SSE streaming.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/httputil"
)

// Provider calls an OpenAI-compatible chat completions endpoint.
type Provider struct {
	key     string
	apiKey  string
	baseURL string
	client  *http.Client
	prices  map[string]domain.PriceTable
}

// New builds a Provider. key is how this provider is registered, e.g.
// "openai" or "azure-openai" for a compatible deployment.
func New(key, apiKey, baseURL string, prices map[string]domain.PriceTable) *Provider {
	return &Provider{
		key:     key,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httputil.DefaultClient(),
		prices:  prices,
	}
}

func (p *Provider) Key() string { return p.key }

func (p *Provider) Price(model string) (domain.PriceTable, bool) {
	pt, ok := p.prices[model]
	return pt, ok
}

type wireMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Delta   *wireMessage `json:"delta,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

func toWireRequest(req domain.ChatRequest, stream bool) wireRequest {
	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = wireMessage{Role: string(m.Role), Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
	}
	return wireRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stream:      stream,
	}
}

func (p *Provider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	body, err := json.Marshal(toWireRequest(req, false))
	if err != nil {
		return domain.ChatResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.ChatResponse{}, classify.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return domain.ChatResponse{}, &classify.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return domain.ChatResponse{}, err
	}

	content := ""
	if len(wr.Choices) > 0 && wr.Choices[0].Message != nil {
		content = wr.Choices[0].Message.Content
	}
	usage := domain.Usage{InputTokens: wr.Usage.PromptTokens, OutputTokens: wr.Usage.CompletionTokens}

	out := domain.ChatResponse{
		Content:  content,
		Usage:    usage,
		Provider: p.key,
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

		body, err := json.Marshal(toWireRequest(req, true))
		if err != nil {
			errs <- err
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			errs <- classify.Transport(err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errs <- &classify.HTTPError{
				StatusCode: resp.StatusCode,
				Body:       string(bodyBytes),
				RetryAfter: resp.Header.Get("Retry-After"),
			}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				select {
				case deltas <- domain.ChatDelta{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var wr wireResponse
			if err := json.Unmarshal([]byte(data), &wr); err != nil {
				continue
			}
			content := ""
			if len(wr.Choices) > 0 && wr.Choices[0].Delta != nil {
				content = wr.Choices[0].Delta.Content
			}

			select {
			case deltas <- domain.ChatDelta{Content: content}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- classify.Transport(err)
		}
	}()

	return deltas, errs
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", http.NoBody)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classify.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &classify.HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}
