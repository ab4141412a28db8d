package balance

import (
	"context"

	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

const (
	defaultHistoryPage = 50
	maxHistoryPage     = 500
)

// History returns ledger entries newest first, one page at a time
func (m *Mutator) History(ctx context.Context, opts repository.ListLedgerOpts) ([]models.LedgerEntry, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultHistoryPage
	case opts.Limit > maxHistoryPage:
		opts.Limit = maxHistoryPage
	}
	opts.Offset = max(opts.Offset, 0)

	return m.storage.Ledger().List(ctx, opts)
}
