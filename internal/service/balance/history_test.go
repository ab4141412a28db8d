package balance

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/repository/postgres"
	"github.com/nkiryanov/numbermart/internal/testutil"
)

func TestHistory(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		st := postgres.NewStorage(tx)
		m := NewMutator(st, logger.NewNoOpLogger())

		owner, err := st.Customer().CreateCustomer(t.Context(), "owner", "hashed")
		require.NoError(t, err)
		other, err := st.Customer().CreateCustomer(t.Context(), "other", "hashed")
		require.NoError(t, err)

		for _, amount := range []int64{100, 200, 300} {
			_, err := m.AdjustBalance(t.Context(), Adjustment{CustomerID: owner.ID, Amount: amount, Kind: models.LedgerKindCredit})
			require.NoError(t, err)
		}
		_, err = m.AdjustBalance(t.Context(), Adjustment{CustomerID: owner.ID, Amount: -50, Kind: models.LedgerKindDebit})
		require.NoError(t, err)
		_, err = m.AdjustBalance(t.Context(), Adjustment{CustomerID: other.ID, Amount: 1, Kind: models.LedgerKindCredit})
		require.NoError(t, err)

		t.Run("own entries newest first", func(t *testing.T) {
			entries, err := m.History(t.Context(), repository.ListLedgerOpts{CustomerID: &owner.ID})
			require.NoError(t, err)

			require.Len(t, entries, 4)
			assert.Equal(t, int64(-50), entries[0].Amount)
			assert.Equal(t, int64(550), entries[0].BalanceAfter)
		})

		t.Run("filter by kind", func(t *testing.T) {
			entries, err := m.History(t.Context(), repository.ListLedgerOpts{
				CustomerID: &owner.ID,
				Kinds:      []models.LedgerKind{models.LedgerKindDebit},
			})
			require.NoError(t, err)

			require.Len(t, entries, 1)
		})

		t.Run("page", func(t *testing.T) {
			entries, err := m.History(t.Context(), repository.ListLedgerOpts{CustomerID: &owner.ID, Limit: 2, Offset: 3})
			require.NoError(t, err)

			require.Len(t, entries, 1)
			assert.Equal(t, int64(100), entries[0].Amount)
		})

		t.Run("negative offset and huge limit are clamped", func(t *testing.T) {
			entries, err := m.History(t.Context(), repository.ListLedgerOpts{Limit: 1_000_000, Offset: -5})
			require.NoError(t, err)

			require.Len(t, entries, 5)
		})
	})
}
