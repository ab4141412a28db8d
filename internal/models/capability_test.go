package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitySet(t *testing.T) {
	t.Run("zero value is empty", func(t *testing.T) {
		var s CapabilitySet

		assert.False(t, s.Has(CapabilityAuditRead))
		assert.Empty(t, s.Strings())
	})

	t.Run("admin implies everything", func(t *testing.T) {
		s := NewCapabilitySet(CapabilityAdmin)

		for _, c := range knownCapabilities {
			assert.Truef(t, s.Has(c), "admin should have %s", c)
		}
	})

	t.Run("only granted", func(t *testing.T) {
		s := NewCapabilitySet(CapabilityAuditRead)

		assert.True(t, s.Has(CapabilityAuditRead))
		assert.False(t, s.Has(CapabilityBalanceWrite))
		assert.False(t, s.Has(CapabilityAdmin))
	})

	t.Run("parse drops unknown names", func(t *testing.T) {
		s := ParseCapabilitySet([]string{"orders:manage", "superuser", "ADMIN", "balance:write"})

		assert.Equal(t, []string{"balance:write", "orders:manage"}, s.Strings(), "stable order, unknown dropped")
	})

	t.Run("customer is admin", func(t *testing.T) {
		assert.True(t, Customer{Capabilities: NewCapabilitySet(CapabilityAdmin)}.IsAdmin())
		assert.False(t, Customer{Capabilities: NewCapabilitySet(CapabilityOrdersManage)}.IsAdmin())
	})
}

func TestOrder(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, st := range []OrderStatus{OrderStatusPending, OrderStatusActive} {
		assert.Truef(t, Order{Status: st}.IsOpen(), "%s is open", st)
	}
	for _, st := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed, OrderStatusExpired} {
		assert.Falsef(t, Order{Status: st}.IsOpen(), "%s is terminal", st)
	}

	assert.Equal(t, 21*time.Minute, Order{CreatedAt: created}.Age(created.Add(21*time.Minute)))
	assert.Equal(t, int64(300), LedgerTotals{Credits: 1000, Debits: 700}.Expected())
}
