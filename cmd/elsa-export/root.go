package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"elsa/internal/backend"
	"elsa/internal/config"
	"elsa/internal/export"
	applog "elsa/internal/log"
	"elsa/internal/services"
	"elsa/internal/worker"
)

type exportFlags struct {
	user    string
	format  string
	dest    string
	dir     string
	dbPath  string
	legacy  bool
	watch   bool
	verbose bool
}

func newRootCmd(cfg *config.Config, out io.Writer) *cobra.Command {
	flags := exportFlags{
		format: string(export.FormatCSV),
		dest:   cfg.ExportDest,
		dir:    cfg.ExportDir,
		dbPath: cfg.SQLiteDBPath,
		legacy: cfg.ExportLegacyCSV,
	}

	cmd := &cobra.Command{
		Use:   "elsa-export {transactions|debts|goals|report}",
		Short: "Export a user's records as CSV or XLSX",
		Long: `elsa-export reads a user's records from the local database and delivers
them as a file to a directory, an S3 bucket or a Google Sheets spreadsheet.

Example Usage:
  elsa-export transactions --user u1
  elsa-export report --user u1 --format xlsx --dest s3
  elsa-export transactions --user u1 --dest sheets --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, cfg, flags, args[0], out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.user, "user", "u", "", "User whose records are exported (required)")
	f.StringVarP(&flags.format, "format", "f", flags.format, "Output format: csv or xlsx")
	f.StringVar(&flags.dest, "dest", flags.dest, "Destination: file, s3 or sheets")
	f.StringVar(&flags.dir, "dir", flags.dir, "Output directory for --dest file")
	f.StringVar(&flags.dbPath, "db", flags.dbPath, "Path to the SQLite database")
	f.BoolVar(&flags.legacy, "legacy", flags.legacy, "Write CSV without quote escaping")
	f.BoolVarP(&flags.watch, "watch", "w", false, "Keep exporting on every change until interrupted")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runExport(cmd *cobra.Command, cfg *config.Config, flags exportFlags, rawKind string, out io.Writer) error {
	kind, err := services.ParseExportKind(rawKind)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	if strings.TrimSpace(flags.user) == "" {
		return errors.New("--user must not be empty")
	}

	logConfig := applog.DefaultConfig()
	logConfig.Output = cmd.ErrOrStderr()
	logConfig.Level = applog.ParseLevel(cfg.LogLevel)
	if flags.verbose {
		logConfig.Level = applog.ParseLevel("debug")
	}
	logger := applog.New(logConfig)

	local := *cfg
	local.ExportDest = flags.dest
	local.ExportDir = flags.dir
	local.SQLiteDBPath = flags.dbPath
	backendConfig, err := backend.FromAppConfig(&local)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	factory := backend.NewFactory(logger)
	dst, err := factory.CreateSink(ctx, backendConfig)
	if err != nil {
		return err
	}
	be, err := factory.CreateBackend(ctx, backendConfig)
	if err != nil {
		return err
	}
	defer be.Cleanup()

	svc := services.NewExportService(be.Store, logger, export.WithLegacyCSV(flags.legacy))

	if flags.watch {
		if backendConfig.Notifier == backend.MemoryNotifier {
			logger.Warn("Watching with the memory notifier only sees changes made by this process")
		}
		archiver := worker.NewArchiver(svc, be.Broker, dst, worker.Config{
			Owner:  flags.user,
			Kind:   kind,
			Format: format,
		}, logger)
		archiver.OnRun(func(res export.Result, err error) {
			if err == nil {
				fmt.Fprintf(out, "%s: %d baris, %d byte\n", res.Filename, res.Rows, res.Bytes)
			}
		})
		return archiver.Run(ctx)
	}

	res, err := svc.Export(ctx, dst, flags.user, kind, format)
	if errors.Is(err, export.ErrEmptyDataset) {
		return errors.New("Belum ada data untuk diekspor")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d baris, %d byte\n", res.Filename, res.Rows, res.Bytes)
	return nil
}
