package services

import (
	"context"

	"github.com/shopspring/decimal"

	"elsa/internal/core"
)

// RecordReader lists an owner's record collections.
type RecordReader interface {
	ListTransactions(ctx context.Context, owner string) ([]core.Transaction, error)
	ListDebts(ctx context.Context, owner string) ([]core.Debt, error)
	ListGoals(ctx context.Context, owner string) ([]core.SavingsGoal, error)
}

// RecordWriter persists record changes. Implementations announce each
// write on the change channel.
type RecordWriter interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner, id string) error
	CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)
	SetDebtPaid(ctx context.Context, owner, id string, paid bool) error
	DeleteDebt(ctx context.Context, owner, id string) error
	CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	AddToGoal(ctx context.Context, owner, id string, amount decimal.Decimal) (core.SavingsGoal, error)
	DeleteGoal(ctx context.Context, owner, id string) error
}

// RecordStore is the full record store.
type RecordStore interface {
	RecordReader
	RecordWriter
	Ping(ctx context.Context) error
	Close() error
}
