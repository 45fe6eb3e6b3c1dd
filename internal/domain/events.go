package domain

const (
	EventDepositUpdated = "deposit_updated"
	EventBalanceUpdated = "balance_updated"
)

// Event is a domain notification emitted by the engine after a state
// transition has been committed. Consumers are observers only; the engine
// never depends on delivery.
type Event struct {
	Type    string   `json:"type"`
	Deposit *Deposit `json:"deposit,omitempty"`
	Balance *Balance `json:"balance,omitempty"`
}

// EventSink receives committed domain events. Publish must not block the
// caller; implementations drop events when their buffers are full.
type EventSink interface {
	Publish(event Event)
}

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) Publish(Event) {}
