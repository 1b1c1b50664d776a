// Package anthropic implements a ChatProvider over the Anthropic
// Messages API, translating the shared domain request/response shapes
// to and from Anthropic's wire format (system prompt pulled out of the
// message list, content blocks instead of a single string).
package anthropic

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

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// Provider calls the Anthropic Messages API.
type Provider struct {
	key     string
	apiKey  string
	baseURL string
	client  *http.Client
	prices  map[string]domain.PriceTable
}

// New builds a Provider against the default Anthropic API base URL.
func New(apiKey string, prices map[string]domain.PriceTable) *Provider {
	return &Provider{
		key:     "anthropic",
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
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
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream,omitempty"`
	System    string        `json:"system,omitempty"`
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
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      wireUsage      `json:"usage"`
}

type streamEvent struct {
	Type  string       `json:"type"`
	Delta *streamDelta `json:"delta,omitempty"`
}

type streamDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func toWireRequest(req domain.ChatRequest, stream bool) wireRequest {
	var system string
	messages := make([]wireMessage, 0, len(req.Messages))
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
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
		System:    system,
		Stream:    stream,
	}
}

func (p *Provider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	body, err := json.Marshal(toWireRequest(req, false))
	if err != nil {
		return domain.ChatResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

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

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", p.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
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

			var event streamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}

			if event.Type == "content_block_delta" && event.Delta != nil {
				select {
				case deltas <- domain.ChatDelta{Content: event.Delta.Text}:
				case <-ctx.Done():
					return
				}
			}

			if event.Type == "message_stop" {
				select {
				case deltas <- domain.ChatDelta{Done: true}:
				case <-ctx.Done():
				}
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
	return nil
}
