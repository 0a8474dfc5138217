package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/progression"
)

// AuditLedgerResult — результат сверки леджера с суммарным XP.
type AuditLedgerResult struct {
	CheckedAt     time.Time                       `json:"checked_at"`
	Discrepancies []progression.LedgerDiscrepancy `json:"discrepancies"`
}

// Consistent reports whether every user's total matches the ledger.
func (r *AuditLedgerResult) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// AuditLedgerHandler сверяет sum(xp_history) с total_xp для всех пользователей.
type AuditLedgerHandler struct {
	progressions progression.ReadRepository
	clock        clockwork.Clock
}

// NewAuditLedgerHandler создаёт обработчик.
func NewAuditLedgerHandler(progressions progression.ReadRepository, clock clockwork.Clock) *AuditLedgerHandler {
	return &AuditLedgerHandler{progressions: progressions, clock: clock}
}

// Handle выполняет сверку. Расхождения не исправляются.
func (h *AuditLedgerHandler) Handle(ctx context.Context) (*AuditLedgerResult, error) {
	found, err := h.progressions.AuditLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit_ledger: %w", err)
	}
	if found == nil {
		found = []progression.LedgerDiscrepancy{}
	}
	return &AuditLedgerResult{CheckedAt: h.clock.Now().UTC(), Discrepancies: found}, nil
}
