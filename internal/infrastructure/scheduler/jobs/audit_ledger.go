package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alem-hub/alem-progression/internal/application/query"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ErrLedgerMismatch is returned when at least one user's total differs from
// the sum of their ledger entries.
var ErrLedgerMismatch = errors.New("ledger mismatch")

// LedgerAuditor compares ledger sums with totals.
type LedgerAuditor interface {
	AuditLedger(ctx context.Context) (*query.AuditLedgerResult, error)
}

// AuditLedgerJob reports users whose total_xp drifted from their history.
// Nothing is repaired automatically.
type AuditLedgerJob struct {
	auditor LedgerAuditor
	logger  *slog.Logger
}

// NewAuditLedgerJob creates the job.
func NewAuditLedgerJob(auditor LedgerAuditor, log *slog.Logger) *AuditLedgerJob {
	if log == nil {
		log = slog.Default()
	}
	return &AuditLedgerJob{auditor: auditor, logger: log}
}

// Name returns the job name.
func (j *AuditLedgerJob) Name() string { return "audit_ledger" }

// Description returns a human-readable description.
func (j *AuditLedgerJob) Description() string {
	return "Compares sum(xp_history) with total_xp for every user"
}

// Run executes the job.
func (j *AuditLedgerJob) Run(ctx context.Context) error {
	res, err := j.auditor.AuditLedger(ctx)
	if err != nil {
		return fmt.Errorf("audit ledger: %w", err)
	}
	if res.Consistent() {
		j.logger.Debug("ledger consistent", logger.Operation(j.Name()))
		return nil
	}

	for _, d := range res.Discrepancies {
		j.logger.Error("ledger discrepancy",
			logger.UserID(d.UserID),
			slog.Int("total_xp", d.TotalXP),
			slog.Int("ledger_sum", d.LedgerSum),
			slog.Int("delta", d.Delta()))
	}
	return fmt.Errorf("%w: %d users", ErrLedgerMismatch, len(res.Discrepancies))
}
