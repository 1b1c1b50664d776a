// Package queue ships an eventbus.Observer that serializes EventRecords
// onto an SQS queue for out-of-process consumers such as a billing
// pipeline. It participates in the bus's best-effort, non-blocking
// delivery contract: a send that can't complete quickly is dropped,
// never awaited on the caller's goroutine.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/metrics"
)

// wireEvent is the JSON shape published onto the queue. Error is
// flattened to its message since domain.Error carries an unexported
// wrapped cause that wouldn't round-trip anyway.
type wireEvent struct {
	Kind      string    `json:"kind"`
	Binding   string    `json:"binding"`
	RequestID string    `json:"request_id"`
	Attempt   int       `json:"attempt,omitempty"`
	WaitMs    int64     `json:"wait_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// SQSSink publishes EventRecords to a single SQS queue. Sends run with
// a short bounded timeout of their own so a stalled queue can't pin the
// bus's per-observer drain goroutine indefinitely.
type SQSSink struct {
	client      *sqs.Client
	queueURL    string
	sendTimeout time.Duration
}

// NewSQSSink resolves AWS credentials from the ambient environment
// (shared config chain) for the given region.
func NewSQSSink(ctx context.Context, region, queueURL string) (*SQSSink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSQSSinkWithConfig(cfg, queueURL), nil
}

// NewSQSSinkWithConfig builds a sink from an already-resolved aws.Config,
// for callers (tests, bootstrap) that assemble credentials themselves.
func NewSQSSinkWithConfig(cfg aws.Config, queueURL string) *SQSSink {
	return &SQSSink{
		client:      sqs.NewFromConfig(cfg),
		queueURL:    queueURL,
		sendTimeout: 2 * time.Second,
	}
}

// Observer adapts the sink to eventbus.Observer's func(domain.EventRecord)
// shape. It never returns an error to the bus; failures are logged and
// counted via metrics.EventsDropped, matching every other observer's
// drop-on-failure behavior.
func (s *SQSSink) Observer(rec domain.EventRecord) {
	we := wireEvent{
		Kind:      string(rec.Kind),
		Binding:   rec.Binding,
		RequestID: rec.RequestID,
		Attempt:   rec.Attempt,
		WaitMs:    rec.WaitMs,
		Time:      rec.Time,
	}
	if rec.Error != nil {
		we.Error = rec.Error.Error()
	}

	body, err := json.Marshal(we)
	if err != nil {
		slog.Warn("event sink marshal failed", "error", err)
		metrics.EventsDropped.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(rec.Kind)),
			},
		},
	})
	if err != nil {
		slog.Warn("event sink send failed", "error", err, "kind", rec.Kind)
		metrics.EventsDropped.Inc()
		return
	}
}

// InMemorySink collects EventRecords for tests and local development
// in place of a real queue.
type InMemorySink struct {
	mu      sync.Mutex
	records []domain.EventRecord
}

// NewInMemorySink builds an empty InMemorySink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Observer adapts the sink to eventbus.Observer.
func (s *InMemorySink) Observer(rec domain.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Records returns a snapshot of everything observed so far.
func (s *InMemorySink) Records() []domain.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventRecord, len(s.records))
	copy(out, s.records)
	return out
}
