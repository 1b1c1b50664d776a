// Package ollama implements a ChatProvider over a local or self-hosted
// Ollama server's /api/chat endpoint, including its newline-delimited
// JSON streaming format. Ollama serves local models at no per-token
// cost, so Price always reports unconfigured.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/httputil"
)

// Provider calls a local Ollama server.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New builds a Provider against baseURL, e.g. "http://localhost:11434".
func New(baseURL string) *Provider {
	return &Provider{
		baseURL: baseURL,
		client:  httputil.DefaultClient(),
	}
}

func (p *Provider) Key() string { return "ollama" }

func (p *Provider) Price(model string) (domain.PriceTable, bool) {
	return domain.PriceTable{}, false
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *wireOptions  `json:"options,omitempty"`
}

type wireResponse struct {
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
}

func toWireRequest(req domain.ChatRequest, stream bool) wireRequest {
	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}

	wr := wireRequest{Model: req.Model, Messages: messages, Stream: stream}
	if req.Temperature != nil || req.MaxTokens != nil || req.TopP != nil {
		wr.Options = &wireOptions{}
		if req.Temperature != nil {
			wr.Options.Temperature = *req.Temperature
		}
		if req.MaxTokens != nil {
			wr.Options.NumPredict = *req.MaxTokens
		}
		if req.TopP != nil {
			wr.Options.TopP = *req.TopP
		}
	}
	return wr
}

func (p *Provider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	body, err := json.Marshal(toWireRequest(req, false))
	if err != nil {
		return domain.ChatResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.ChatResponse{}, classify.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return domain.ChatResponse{}, &classify.HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return domain.ChatResponse{}, err
	}

	return domain.ChatResponse{
		Content:  wr.Message.Content,
		Usage:    domain.Usage{InputTokens: wr.PromptEvalCount, OutputTokens: wr.EvalCount},
		Provider: p.Key(),
		Model:    req.Model,
	}, nil
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

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			errs <- classify.Transport(err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errs <- &classify.HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}

			var wr wireResponse
			if err := json.Unmarshal([]byte(line), &wr); err != nil {
				continue
			}

			select {
			case deltas <- domain.ChatDelta{Content: wr.Message.Content, Done: wr.Done}:
			case <-ctx.Done():
				return
			}

			if wr.Done {
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
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return err
	}

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
