// Package domain holds the data types shared by every orchestrator
// component: chat messages, bindings, and the classified error taxonomy.
package domain

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation. Immutable once submitted to a
// ChatRequest.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ChatRequest names a logical model and carries the conversation so far.
// Model may be a concrete provider model name or a registry alias; when
// Provider is set, the registry's alias resolution is bypassed and Model
// is taken as that provider's concrete model name (direct addressing,
// see registry.Registry.Direct).
type ChatRequest struct {
	Model       string    `json:"model"`
	Provider    string    `json:"provider,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

// Usage reports token counts for a completed call.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ChatResponse is the result of a unary chat call.
type ChatResponse struct {
	Content   string      `json:"content"`
	Usage     Usage       `json:"usage,omitempty"`
	CostUSD   float64     `json:"cost_usd"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	RequestID string      `json:"request_id,omitempty"`
	Raw       interface{} `json:"-"`
}

// ChatDelta is one frame of a streamed response. A delta with Done set
// to true is the terminal sentinel; no further deltas or errors follow it.
type ChatDelta struct {
	Content string      `json:"content,omitempty"`
	Done    bool        `json:"-"`
	Raw     interface{} `json:"-"`
}

// PriceTable prices a binding in USD per 1,000 tokens.
type PriceTable struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Binding is a concrete (provider, model) pair addressable for admission
// control, breaker state, and cost lookup. Key is the composite string
// used by the limiter and breaker to key their per-binding state.
type Binding struct {
	ProviderKey string
	Model       string
	Price       PriceTable
}

// Key returns the composite "{providerKey}:{model}" identity used to
// index limiter buckets and breaker state.
func (b Binding) Key() string {
	return b.ProviderKey + ":" + b.Model
}

// Cost computes the USD cost of usage against the binding's price table.
func (b Binding) Cost(u Usage) float64 {
	return float64(u.InputTokens)/1000*b.Price.InputPer1K + float64(u.OutputTokens)/1000*b.Price.OutputPer1K
}
