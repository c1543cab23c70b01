package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"elsa/internal/core"
	applog "elsa/internal/log"
)

// RecordService is the write path for records. Change notification is
// the store's job; the service adds logging and owns shutdown of the
// store and any extra resources registered with it.
type RecordService struct {
	store   RecordStore
	closers []io.Closer
	logger  *applog.Logger
}

func NewRecordService(store RecordStore, logger *applog.Logger, closers ...io.Closer) *RecordService {
	return &RecordService{
		store:   store,
		closers: closers,
		logger:  applog.OrNop(logger).WithComponent(applog.ComponentStorage),
	}
}

func (s *RecordService) Store() RecordStore { return s.store }

func (s *RecordService) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	return created, nil
}

func (s *RecordService) EditTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	updated, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return updated, nil
}

func (s *RecordService) RemoveTransaction(ctx context.Context, owner, id string) error {
	if err := s.store.DeleteTransaction(ctx, owner, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted", applog.FieldOwner, owner, applog.FieldRecordID, id)
	return nil
}

func (s *RecordService) AddDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	created, err := s.store.CreateDebt(ctx, d)
	if err != nil {
		return core.Debt{}, fmt.Errorf("save debt: %w", err)
	}
	return created, nil
}

func (s *RecordService) SettleDebt(ctx context.Context, owner, id string, paid bool) error {
	if err := s.store.SetDebtPaid(ctx, owner, id, paid); err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	return nil
}

func (s *RecordService) RemoveDebt(ctx context.Context, owner, id string) error {
	if err := s.store.DeleteDebt(ctx, owner, id); err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	return nil
}

func (s *RecordService) AddGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	created, err := s.store.CreateGoal(ctx, g)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("save goal: %w", err)
	}
	return created, nil
}

func (s *RecordService) Contribute(ctx context.Context, owner, id string, amount decimal.Decimal) (core.SavingsGoal, error) {
	g, err := s.store.AddToGoal(ctx, owner, id, amount)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("add to goal: %w", err)
	}
	if g.IsCompleted {
		s.logger.InfoContext(ctx, "Savings goal reached", applog.FieldOwner, owner, applog.FieldRecordID, id)
	}
	return g, nil
}

func (s *RecordService) RemoveGoal(ctx context.Context, owner, id string) error {
	if err := s.store.DeleteGoal(ctx, owner, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// Close closes the store and every registered closer, collecting errors.
func (s *RecordService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	for _, c := range s.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
