package models

import (
	"time"

	"github.com/google/uuid"
)

type LedgerKind string

const (
	LedgerKindCredit     LedgerKind = "credit"
	LedgerKindDebit      LedgerKind = "debit"
	LedgerKindPurchase   LedgerKind = "purchase"
	LedgerKindRefund     LedgerKind = "refund"
	LedgerKindWithdrawal LedgerKind = "withdrawal"
	LedgerKindHold       LedgerKind = "hold"
)

var LedgerKinds = []LedgerKind{
	LedgerKindCredit,
	LedgerKindDebit,
	LedgerKindPurchase,
	LedgerKindRefund,
	LedgerKindWithdrawal,
	LedgerKindHold,
}

type Origin string

const (
	OriginAPI      Origin = "api"
	OriginCustomer Origin = "customer"
	OriginAdmin    Origin = "admin"
	OriginSystem   Origin = "system"
)

// Immutable record of one balance change.
// BalanceAfter always equals BalanceBefore + Amount.
type LedgerEntry struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	Amount         int64
	Kind           LedgerKind
	BalanceBefore  int64
	BalanceAfter   int64
	Origin         Origin
	ActorID        *uuid.UUID
	RelatedOrderID *uuid.UUID
	Description    string
	Metadata       map[string]any
	Corrective     bool
	CreatedAt      time.Time
}

// Aggregates of non-corrective ledger entries for one customer
type LedgerTotals struct {
	CustomerID uuid.UUID
	Credits    int64
	Debits     int64
	Count      int64

	// Cached balance at the moment totals were read
	Balance int64
}

// Expected balance derived from the ledger
func (t LedgerTotals) Expected() int64 {
	return t.Credits - t.Debits
}

// Result of a successful balance mutation
type BalanceChange struct {
	BalanceBefore int64
	BalanceAfter  int64
	Entry         LedgerEntry
}
