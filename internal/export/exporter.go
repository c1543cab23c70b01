package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"elsa/internal/core"
	applog "elsa/internal/log"
	"elsa/internal/sink"
)

// Logical file names; the export date and extension are appended.
const (
	NameTransactions = "elsa-transaksi"
	NameDebts        = "elsa-hutang-piutang"
	NameGoals        = "elsa-target-tabungan"
	NameReport       = "elsa-laporan-keuangan-lengkap"
)

var (
	TransactionHeaders = []string{"Tanggal", "Tipe", "Kategori", "Deskripsi", "Jumlah", "Catatan"}
	DebtHeaders        = []string{"Nama Orang", "Tipe", "Jumlah", "Deskripsi", "Jatuh Tempo", "Status"}
	GoalHeaders        = []string{"Judul", "Target", "Terkumpul", "Progress", "Deadline", "Deskripsi", "Status"}
	ReportHeaders      = []string{"Tanggal Ekspor", "Total Transaksi", "Total Hutang Piutang", "Total Target",
		"Total Pemasukan", "Total Pengeluaran", "Total Tabungan"}
)

// Result describes a delivered export.
type Result struct {
	Filename string
	Format   Format
	Rows     int
	Bytes    int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the time source used for filenames and report dates.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLegacyCSV turns off quote escaping for byte-exact historic output.
func WithLegacyCSV(legacy bool) Option {
	return func(e *Exporter) { e.csv.Legacy = legacy }
}

// WithLogger sets the logger.
func WithLogger(l *applog.Logger) Option {
	return func(e *Exporter) { e.logger = l.WithComponent(applog.ComponentExport) }
}

// Exporter serialises documents and hands them to a sink.
type Exporter struct {
	sink   sink.Sink
	now    func() time.Time
	csv    CSVOptions
	logger *applog.Logger
}

func NewExporter(s sink.Sink, opts ...Option) *Exporter {
	e := &Exporter{
		sink:   s,
		now:    time.Now,
		logger: applog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// logMissingKeys notes rows that will render blank cells.
func (e *Exporter) logMissingKeys(ctx context.Context, name string, doc Document) {
	rows := 0
	var first []string
	for i := 0; i < doc.Len(); i++ {
		if missing := doc.MissingKeys(i); len(missing) > 0 {
			if rows == 0 {
				first = missing
			}
			rows++
		}
	}
	if rows > 0 {
		e.logger.DebugContext(ctx, "Rows with blank cells",
			"name", name, applog.FieldRows, rows, "first_missing", first)
	}
}

// Filename builds "{name}-{YYYY-MM-DD}.{ext}". The date is the UTC date;
// the report's export date stays local.
func (e *Exporter) Filename(name string, format Format) string {
	return fmt.Sprintf("%s-%s.%s", name, e.now().UTC().Format("2006-01-02"), format.Extension())
}

// Export serialises doc and delivers it. An empty document fails with
// ErrEmptyDataset before anything reaches the sink. The file is fully
// encoded in memory before the sink handle is opened, and the handle is
// always closed before returning.
func (e *Exporter) Export(ctx context.Context, name string, doc Document, format Format) (Result, error) {
	if doc.IsEmpty() {
		e.logger.InfoContext(ctx, "Export skipped, nothing to export", "name", name)
		return Result{}, ErrEmptyDataset
	}
	e.logMissingKeys(ctx, name, doc)

	var buf bytes.Buffer
	if err := Encode(&buf, doc, format, e.csv); err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", name, err)
	}

	res := Result{
		Filename: e.Filename(name, format),
		Format:   format,
		Rows:     doc.Len(),
		Bytes:    buf.Len(),
	}
	file := sink.File{Name: res.Filename, ContentType: format.ContentType()}
	if err := sink.Deliver(ctx, e.sink, file, buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("deliver %s: %w", res.Filename, err)
	}

	e.logger.DebugContext(ctx, "Export delivered",
		applog.FieldFilename, res.Filename,
		applog.FieldFormat, string(format),
		applog.FieldRows, res.Rows,
		applog.FieldBytes, res.Bytes)
	return res, nil
}

// ExportTransactions exports the transaction collection.
func (e *Exporter) ExportTransactions(ctx context.Context, txs []core.Transaction, format Format) (Result, error) {
	doc, err := NewDocument(TransactionHeaders, Project(txs, TransactionRow))
	if err != nil {
		return Result{}, err
	}
	return e.Export(ctx, NameTransactions, doc, format)
}

// ExportDebts exports the debt collection.
func (e *Exporter) ExportDebts(ctx context.Context, debts []core.Debt, format Format) (Result, error) {
	doc, err := NewDocument(DebtHeaders, Project(debts, DebtRow))
	if err != nil {
		return Result{}, err
	}
	return e.Export(ctx, NameDebts, doc, format)
}

// ExportGoals exports the savings goal collection.
func (e *Exporter) ExportGoals(ctx context.Context, goals []core.SavingsGoal, format Format) (Result, error) {
	doc, err := NewDocument(GoalHeaders, Project(goals, GoalRow))
	if err != nil {
		return Result{}, err
	}
	return e.Export(ctx, NameGoals, doc, format)
}

// ExportReport exports the single-row financial summary. It always has one
// row, so it never fails with ErrEmptyDataset.
func (e *Exporter) ExportReport(ctx context.Context, txs []core.Transaction, debts []core.Debt, goals []core.SavingsGoal, format Format) (Result, error) {
	summary := core.Summarize(e.now(), txs, debts, goals)
	doc, err := NewDocument(ReportHeaders, []Row{SummaryRow(summary)})
	if err != nil {
		return Result{}, err
	}
	return e.Export(ctx, NameReport, doc, format)
}

// TransactionTypeLabel is the Indonesian label of a transaction type.
func TransactionTypeLabel(t core.TransactionType) string {
	switch t {
	case core.Income:
		return "Pemasukan"
	case core.Expense:
		return "Pengeluaran"
	default:
		return "Tabungan"
	}
}

// DebtTypeLabel is the Indonesian label of a debt direction.
func DebtTypeLabel(t core.DebtType) string {
	if t == core.Owe {
		return "Saya hutang ke orang"
	}
	return "Orang hutang ke saya"
}

func TransactionRow(t core.Transaction) Row {
	return Row{
		"tanggal":   t.Date.String(),
		"tipe":      TransactionTypeLabel(t.Type),
		"kategori":  t.Category,
		"deskripsi": t.Description,
		"jumlah":    t.Amount.String(),
		"catatan":   core.Deref(t.Note),
	}
}

func DebtRow(d core.Debt) Row {
	status := "Belum Lunas"
	if d.IsPaid {
		status = "Lunas"
	}
	return Row{
		"nama_orang":  d.PersonName,
		"tipe":        DebtTypeLabel(d.Type),
		"jumlah":      d.Amount.String(),
		"deskripsi":   core.Deref(d.Description),
		"jatuh_tempo": core.DateString(d.DueDate),
		"status":      status,
	}
}

func GoalRow(g core.SavingsGoal) Row {
	status := "Aktif"
	if g.IsCompleted {
		status = "Tercapai"
	}
	return Row{
		"judul":     g.Title,
		"target":    g.TargetAmount.String(),
		"terkumpul": g.CurrentAmount.String(),
		"progress":  g.Progress(),
		"deadline":  core.DateString(g.Deadline),
		"deskripsi": core.Deref(g.Description),
		"status":    status,
	}
}

func SummaryRow(s core.Summary) Row {
	return Row{
		"tanggal_ekspor":       core.FormatShortDate(s.ExportDate),
		"total_transaksi":      strconv.Itoa(s.TransactionCount),
		"total_hutang_piutang": strconv.Itoa(s.DebtCount),
		"total_target":         strconv.Itoa(s.GoalCount),
		"total_pemasukan":      s.TotalIncome.String(),
		"total_pengeluaran":    s.TotalExpense.String(),
		"total_tabungan":       s.TotalSavings.String(),
	}
}
