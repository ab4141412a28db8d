package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/testutil"
)

func Test_CancellationAndPolicies(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("records in window newest first", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := NewStorage(tx)
			c, err := storage.Customer().CreateCustomer(t.Context(), "canceller", "hashed")
			require.NoError(t, err)
			now := time.Now()

			_, err = storage.Cancellation().Record(t.Context(), c.ID, "smshub", nil, now.Add(-15*time.Minute))
			require.NoError(t, err)
			_, err = storage.Cancellation().Record(t.Context(), c.ID, "smshub", nil, now.Add(-5*time.Minute))
			require.NoError(t, err)
			latest, err := storage.Cancellation().Record(t.Context(), c.ID, "smshub", nil, now.Add(-time.Minute))
			require.NoError(t, err)
			_, err = storage.Cancellation().Record(t.Context(), c.ID, "other", nil, now)
			require.NoError(t, err)

			got, err := storage.Cancellation().ListSince(t.Context(), c.ID, "smshub", now.Add(-10*time.Minute))

			require.NoError(t, err)
			require.Len(t, got, 2, "only records of the provider inside the window")
			assert.Equal(t, latest.ID, got[0].ID)
		})
	})

	t.Run("record with order", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := NewStorage(tx)
			c, err := storage.Customer().CreateCustomer(t.Context(), "canceller", "hashed")
			require.NoError(t, err)
			order, err := storage.Order().CreateOrder(t.Context(), c.ID, "smshub", "wa", 100)
			require.NoError(t, err)

			rec, err := storage.Cancellation().Record(t.Context(), c.ID, "smshub", &order.ID, time.Now())

			require.NoError(t, err)
			require.NotNil(t, rec.OrderID)
			assert.Equal(t, order.ID, *rec.OrderID)
		})
	})

	t.Run("policy upsert and get", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := NewStorage(tx)
			policy := models.ProviderPolicy{
				ProviderID:            "smshub",
				Name:                  "SMS Hub",
				CancelLimit:           5,
				CancelWindowMinutes:   10,
				BlockDurationMinutes:  30,
				MaxSimultaneousOrders: 3,
			}

			created, err := storage.Policy().UpsertPolicy(t.Context(), policy)
			require.NoError(t, err)
			assert.Equal(t, 5, created.CancelLimit)

			policy.CancelLimit = 7
			updated, err := storage.Policy().UpsertPolicy(t.Context(), policy)
			require.NoError(t, err)
			assert.Equal(t, 7, updated.CancelLimit)

			got, err := storage.Policy().GetPolicy(t.Context(), "smshub")
			require.NoError(t, err)
			assert.Equal(t, 7, got.CancelLimit)
			assert.Equal(t, 10*time.Minute, got.CancelWindow())
			assert.Equal(t, 30*time.Minute, got.BlockDuration())

			all, err := storage.Policy().ListPolicies(t.Context())
			require.NoError(t, err)
			assert.Len(t, all, 1)

			_, err = storage.Policy().GetPolicy(t.Context(), "unknown")
			assert.ErrorIs(t, err, apperrors.ErrProviderNotFound)
		})
	})

	t.Run("payment events deduplicated", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := NewStorage(tx)
			c, err := storage.Customer().CreateCustomer(t.Context(), "payer", "hashed")
			require.NoError(t, err)
			event := models.PaymentEvent{IdempotencyKey: "pix-1", CustomerID: c.ID, Amount: 5000}

			stored, created, err := storage.Payment().CreateEvent(t.Context(), event)
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, "pix-1", stored.IdempotencyKey)

			_, created, err = storage.Payment().CreateEvent(t.Context(), event)
			require.NoError(t, err)
			assert.False(t, created, "second delivery of the same key is a duplicate")

			err = storage.Payment().SetLedgerEntry(t.Context(), "pix-1", uuid.New())
			require.Error(t, err, "ledger entry must exist")
		})
	})
}
