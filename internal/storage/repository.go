package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"elsa/internal/core"
	applog "elsa/internal/log"
	"elsa/internal/notify"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist for the owner.
var ErrNotFound = errors.New("record not found")

const timeLayout = time.RFC3339Nano

// SQLiteRepository stores every record collection in one SQLite file and
// announces each successful write on the configured publisher.
type SQLiteRepository struct {
	db        *sql.DB
	publisher notify.Publisher
	logger    *applog.Logger
	now       func() time.Time
}

type Option func(*SQLiteRepository)

// WithPublisher announces writes through p.
func WithPublisher(p notify.Publisher) Option {
	return func(r *SQLiteRepository) { r.publisher = p }
}

func WithLogger(l *applog.Logger) Option {
	return func(r *SQLiteRepository) { r.logger = l.WithComponent(applog.ComponentStorage) }
}

func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	change, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		logger: applog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	if change.Applied {
		repo.logger.Info("Database schema migrated",
			"path", dbPath, "from_version", change.From, "to_version", change.To)
	} else {
		repo.logger.Debug("Database schema up to date", "path", dbPath, "version", change.To)
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// announce publishes a change. A failed publish never fails the write; live
// views catch up on the next change.
func (r *SQLiteRepository) announce(ctx context.Context, table, owner string, kind notify.EventKind, id string) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, notify.NewEvent(table, owner, kind, id)); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish change event",
			applog.NewFields().
				WithOperation(applog.OpPublish).
				WithChange(table, owner, string(kind), id).
				WithError(err).ToSlice()...)
	}
}

// ListTransactions returns the owner's transactions, newest date first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, owner string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, category, description, amount, date, note, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// GetTransaction returns one of the owner's transactions.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, category, description, amount, date, note, created_at
		FROM transactions
		WHERE user_id = ? AND id = ?`, owner, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	return t, err
}

// CreateTransaction validates and stores t, assigning its ID and creation
// time.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, category, description, amount, date, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Type), t.Category, t.Description, t.Amount.String(),
		t.Date.String(), nullString(t.Note), t.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Transaction saved",
		applog.FieldRecordID, t.ID, applog.FieldOwner, t.UserID, "type", string(t.Type))
	r.announce(ctx, notify.TableTransactions, t.UserID, notify.Insert, t.ID)
	return t, nil
}

// UpdateTransaction replaces the editable fields of an existing transaction.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, category = ?, description = ?, amount = ?, date = ?, note = ?
		WHERE user_id = ? AND id = ?`,
		string(t.Type), t.Category, t.Description, t.Amount.String(), t.Date.String(), nullString(t.Note),
		t.UserID, t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := expectOne(res); err != nil {
		return core.Transaction{}, err
	}

	r.announce(ctx, notify.TableTransactions, t.UserID, notify.Update, t.ID)
	return r.GetTransaction(ctx, t.UserID, t.ID)
}

// DeleteTransaction removes one of the owner's transactions.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	r.announce(ctx, notify.TableTransactions, owner, notify.Delete, id)
	return nil
}

// ListDebts returns the owner's debts, newest first.
func (r *SQLiteRepository) ListDebts(ctx context.Context, owner string) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, person_name, type, amount, description, due_date, is_paid, created_at
		FROM debts
		WHERE user_id = ?
		ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []core.Debt
	for rows.Next() {
		var (
			d                   core.Debt
			typ, amount, create string
			desc, due           sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.PersonName, &typ, &amount, &desc, &due, &d.IsPaid, &create); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		d.Type = core.DebtType(typ)
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode debt %s amount: %w", d.ID, err)
		}
		d.Description = stringPtr(desc)
		if d.DueDate, err = datePtr(due); err != nil {
			return nil, fmt.Errorf("decode debt %s due date: %w", d.ID, err)
		}
		d.CreatedAt, _ = time.Parse(timeLayout, create)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debts: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	d.ID = uuid.NewString()
	d.CreatedAt = r.now().UTC()

	var due sql.NullString
	if d.DueDate != nil {
		due = sql.NullString{String: d.DueDate.String(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debts (id, user_id, person_name, type, amount, description, due_date, is_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.PersonName, string(d.Type), d.Amount.String(), nullString(d.Description),
		due, d.IsPaid, d.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Debt{}, fmt.Errorf("create debt: %w", err)
	}

	r.announce(ctx, notify.TableDebts, d.UserID, notify.Insert, d.ID)
	return d, nil
}

// SetDebtPaid marks a debt as settled or reopens it.
func (r *SQLiteRepository) SetDebtPaid(ctx context.Context, owner, id string, paid bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE debts SET is_paid = ? WHERE user_id = ? AND id = ?`, paid, owner, id)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	r.announce(ctx, notify.TableDebts, owner, notify.Update, id)
	return nil
}

func (r *SQLiteRepository) DeleteDebt(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE user_id = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	r.announce(ctx, notify.TableDebts, owner, notify.Delete, id)
	return nil
}

// ListGoals returns the owner's savings goals, newest first.
func (r *SQLiteRepository) ListGoals(ctx context.Context, owner string) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, target_amount, current_amount, deadline, description, is_completed, created_at
		FROM savings_goals
		WHERE user_id = ?
		ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		var (
			g                       core.SavingsGoal
			target, current, create string
			deadline, desc          sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &target, &current, &deadline, &desc, &g.IsCompleted, &create); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("decode goal %s target: %w", g.ID, err)
		}
		if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("decode goal %s current: %w", g.ID, err)
		}
		if g.Deadline, err = datePtr(deadline); err != nil {
			return nil, fmt.Errorf("decode goal %s deadline: %w", g.ID, err)
		}
		g.Description = stringPtr(desc)
		g.CreatedAt, _ = time.Parse(timeLayout, create)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	g.ID = uuid.NewString()
	g.CreatedAt = r.now().UTC()

	var deadline sql.NullString
	if g.Deadline != nil {
		deadline = sql.NullString{String: g.Deadline.String(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO savings_goals (id, user_id, title, target_amount, current_amount, deadline, description, is_completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Title, g.TargetAmount.String(), g.CurrentAmount.String(), deadline,
		nullString(g.Description), g.IsCompleted, g.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}

	r.announce(ctx, notify.TableGoals, g.UserID, notify.Insert, g.ID)
	return g, nil
}

// AddToGoal adds amount to a goal's collected total. The goal is marked
// completed once the total reaches a positive target.
func (r *SQLiteRepository) AddToGoal(ctx context.Context, owner, id string, amount decimal.Decimal) (core.SavingsGoal, error) {
	if amount.Sign() <= 0 {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var target, current string
	err = tx.QueryRowContext(ctx, `SELECT target_amount, current_amount FROM savings_goals WHERE user_id = ? AND id = ?`, owner, id).
		Scan(&target, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, ErrNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("read goal: %w", err)
	}
	t, err := decimal.NewFromString(target)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("decode goal target: %w", err)
	}
	c, err := decimal.NewFromString(current)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("decode goal current: %w", err)
	}
	c = c.Add(amount)
	completed := t.Sign() > 0 && c.GreaterThanOrEqual(t)

	if _, err := tx.ExecContext(ctx, `UPDATE savings_goals SET current_amount = ?, is_completed = ? WHERE user_id = ? AND id = ?`,
		c.String(), completed, owner, id); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit: %w", err)
	}

	r.announce(ctx, notify.TableGoals, owner, notify.Update, id)

	goals, err := r.ListGoals(ctx, owner)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	for _, g := range goals {
		if g.ID == id {
			return g, nil
		}
	}
	return core.SavingsGoal{}, ErrNotFound
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM savings_goals WHERE user_id = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	r.announce(ctx, notify.TableGoals, owner, notify.Delete, id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                         core.Transaction
		typ, amount, date, create string
		note                      sql.NullString
	)
	if err := s.Scan(&t.ID, &t.UserID, &typ, &t.Category, &t.Description, &amount, &date, &note, &create); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TransactionType(typ)

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("decode transaction %s amount: %w", t.ID, err)
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return t, fmt.Errorf("decode transaction %s date: %w", t.ID, err)
	}
	t.Note = stringPtr(note)
	t.CreatedAt, _ = time.Parse(timeLayout, create)
	return t, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func datePtr(ns sql.NullString) (*core.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := core.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
