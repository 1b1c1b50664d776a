package queue

import (
	"testing"
	"time"

	"github.com/coreroute/orchestrator/internal/domain"
)

func TestInMemorySink_ObserverCollectsRecords(t *testing.T) {
	sink := NewInMemorySink()

	sink.Observer(domain.EventRecord{Kind: domain.EventCallStart, Binding: "openai:gpt-4", RequestID: "r1", Time: time.Now()})
	sink.Observer(domain.EventRecord{Kind: domain.EventCallSuccess, Binding: "openai:gpt-4", RequestID: "r1", Time: time.Now()})

	got := sink.Records()
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Kind != domain.EventCallStart || got[1].Kind != domain.EventCallSuccess {
		t.Errorf("unexpected record order/kinds: %+v", got)
	}
}

func TestInMemorySink_CarriesErrorMessage(t *testing.T) {
	sink := NewInMemorySink()
	derr := domain.New(domain.KindServerError, "upstream 500", nil)

	sink.Observer(domain.EventRecord{Kind: domain.EventCallError, Binding: "anthropic:claude", Error: derr, Time: time.Now()})

	got := sink.Records()
	if len(got) != 1 || got[0].Error == nil {
		t.Fatalf("expected 1 record with error, got %+v", got)
	}
}
