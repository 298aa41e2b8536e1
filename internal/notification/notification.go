package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindDepositSucceeded is emitted once a deposit has been credited.
	KindDepositSucceeded = "deposit.succeeded"
	// KindTransferCompleted is emitted once both legs of a transfer committed.
	KindTransferCompleted = "transfer.completed"
)

// Message describes a ledger event. Destination is the principal the event is
// addressed to; Reference ties it back to a ledger entry or transfer group.
type Message struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Reference   string    `json:"reference"`
	Amount      int64     `json:"amount"`
	Body        string    `json:"body,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems. Delivery is best
// effort: ledger state is already committed when Send is called.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"reference", message.Reference,
		"amount", message.Amount,
	)
	return nil
}

// Fanout sends every message to each notifier in turn and returns the first
// error. Later notifiers still run when an earlier one fails.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, message Message) error {
	var first error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every notifier that holds resources.
func (f Fanout) Close() error {
	var first error
	for _, n := range f {
		if c, ok := n.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
