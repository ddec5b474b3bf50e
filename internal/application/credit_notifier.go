package application

import (
	"context"
	"log/slog"

	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/notify"
)

// CreditsAdjusted is the payload published after a ledger call.
type CreditsAdjusted struct {
	Operation   string               `json:"operation"`
	Adjustments []credits.Adjustment `json:"adjustments"`
}

// CreditNotifier publishes ledger adjustments. It implements credits.Observer.
type CreditNotifier struct {
	publisher notify.Publisher
	logger    *slog.Logger
}

// NewCreditNotifier wraps publisher. A nil publisher discards notices.
func NewCreditNotifier(publisher notify.Publisher, logger *slog.Logger) *CreditNotifier {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &CreditNotifier{publisher: publisher, logger: defaultLogger(logger)}
}

// CreditsAdjusted implements credits.Observer.
func (n *CreditNotifier) CreditsAdjusted(ctx context.Context, operation string, adjustments []credits.Adjustment) {
	if n == nil || len(adjustments) == 0 {
		return
	}
	payload := CreditsAdjusted{Operation: operation, Adjustments: adjustments}
	if err := n.publisher.Publish(ctx, notify.SubjectCreditsAdjusted, payload); err != nil {
		serviceLogger(ctx, n.logger, "CreditNotifier", "CreditsAdjusted").
			WarnContext(ctx, "failed to publish credit notice", "error", err, "clients", len(adjustments))
	}
}

var _ credits.Observer = (*CreditNotifier)(nil)
