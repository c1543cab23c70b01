package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"elsa/internal/core"
	"elsa/internal/export"
	applog "elsa/internal/log"
	"elsa/internal/sink"
)

// ExportKind names one of the four exports.
type ExportKind string

const (
	ExportTransactions ExportKind = "transactions"
	ExportDebts        ExportKind = "debts"
	ExportGoals        ExportKind = "goals"
	ExportReport       ExportKind = "report"
)

func ParseExportKind(s string) (ExportKind, error) {
	switch k := ExportKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ExportTransactions, ExportDebts, ExportGoals, ExportReport:
		return k, nil
	default:
		return "", fmt.Errorf("unknown export %q", s)
	}
}

// ExportService loads an owner's records and runs the matching export
// into a sink.
type ExportService struct {
	reader RecordReader
	opts   []export.Option
	logger *applog.Logger
}

func NewExportService(reader RecordReader, logger *applog.Logger, opts ...export.Option) *ExportService {
	logger = applog.OrNop(logger).WithComponent(applog.ComponentExport)
	return &ExportService{
		reader: reader,
		opts:   append([]export.Option{export.WithLogger(logger)}, opts...),
		logger: logger,
	}
}

// Export writes the owner's kind export in format to s. Empty collections
// fail with export.ErrEmptyDataset and leave s untouched.
func (s *ExportService) Export(ctx context.Context, dst sink.Sink, owner string, kind ExportKind, format export.Format) (export.Result, error) {
	if strings.TrimSpace(owner) == "" {
		return export.Result{}, core.ErrEmptyOwner
	}
	res, err := s.export(ctx, export.NewExporter(dst, s.opts...), owner, kind, format)
	if err != nil {
		return res, err
	}
	applog.NewStructuredLogger(s.logger).LogExport(ctx, owner, res.Filename, string(res.Format), res.Rows, res.Bytes)
	return res, nil
}

func (s *ExportService) export(ctx context.Context, exporter *export.Exporter, owner string, kind ExportKind, format export.Format) (export.Result, error) {
	switch kind {
	case ExportTransactions:
		txs, err := s.reader.ListTransactions(ctx, owner)
		if err != nil {
			return export.Result{}, fmt.Errorf("load transactions: %w", err)
		}
		return exporter.ExportTransactions(ctx, txs, format)
	case ExportDebts:
		debts, err := s.reader.ListDebts(ctx, owner)
		if err != nil {
			return export.Result{}, fmt.Errorf("load debts: %w", err)
		}
		return exporter.ExportDebts(ctx, debts, format)
	case ExportGoals:
		goals, err := s.reader.ListGoals(ctx, owner)
		if err != nil {
			return export.Result{}, fmt.Errorf("load goals: %w", err)
		}
		return exporter.ExportGoals(ctx, goals, format)
	case ExportReport:
		txs, debts, goals, err := s.loadAll(ctx, owner)
		if err != nil {
			return export.Result{}, err
		}
		return exporter.ExportReport(ctx, txs, debts, goals, format)
	default:
		return export.Result{}, fmt.Errorf("unknown export %q", kind)
	}
}

func (s *ExportService) loadAll(ctx context.Context, owner string) ([]core.Transaction, []core.Debt, []core.SavingsGoal, error) {
	var (
		txs   []core.Transaction
		debts []core.Debt
		goals []core.SavingsGoal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if txs, err = s.reader.ListTransactions(gctx, owner); err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if debts, err = s.reader.ListDebts(gctx, owner); err != nil {
			return fmt.Errorf("load debts: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if goals, err = s.reader.ListGoals(gctx, owner); err != nil {
			return fmt.Errorf("load goals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return txs, debts, goals, nil
}
