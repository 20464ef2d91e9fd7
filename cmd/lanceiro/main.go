package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lanceiro/internal/batch"
	"lanceiro/internal/config"
	"lanceiro/internal/cota"
	"lanceiro/internal/logging"
	"lanceiro/internal/reconcile"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lanceiro",
	Short: "lanceiro - Servopa consortium bid automation",
	Long: `lanceiro automates the Servopa consortium bid workflow: it logs into the
portal, searches each cota, submits the bid form, downloads the confirmation
PDF and files it under the operator's folder with a canonical name.

It also ships a standalone reconciliation pass that re-derives each filed
PDF's identity from its text and renames the files consistently.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd processes a batch of cotas for one operator
var runCmd = &cobra.Command{
	Use:   "run [operator] [input-file]",
	Short: "Run the bid batch for an operator",
	Long: `Reads cota lines from the input file (one per line, separators tolerated),
skips cotas that already have a filed PDF, logs into the portal and processes
the rest. Ends with a reconciliation pass over the operator's folder and an
appended block in the error report file.

Example:
  lanceiro run "Maria" cotas.txt`,
	Args: cobra.ExactArgs(2),
	RunE: runBatch,
}

// verifyCmd runs the reconciliation pass only
var verifyCmd = &cobra.Command{
	Use:   "verify [operator]",
	Short: "Reconcile filed PDF names for an operator without processing bids",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

// countCmd counts valid cota lines in an input file
var countCmd = &cobra.Command{
	Use:   "count [input-file]",
	Short: "Count valid cota lines in an input file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

var legacyComments bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lanceiro.yaml", "path to the config file")
	countCmd.Flags().BoolVar(&legacyComments, "legacy", false, "ignore lines starting with #")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(countCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	operator, inputPath := args[0], args[1]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}

	// The run gets its own logger: stderr plus the run log file, teed into
	// a sink so the last lines can be replayed on failure.
	sink := logging.NewMemorySink()
	runLogger, err := logging.NewRunLogger(cfg.LogFile, verbose, sink)
	if err != nil {
		logger.Warn("run log file unavailable, logging to stderr only", zap.Error(err))
		runLogger = logger
	} else {
		defer func() { _ = runLogger.Sync() }()
	}

	// Ctrl-C requests a cooperative stop, honored between records.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := reconcile.New(reconcile.PDFTextExtractor{}, runLogger)
	orch := batch.New(cfg, batch.NewLiveFactory(cfg, operator, runLogger), reconciler, runLogger)

	pterm.Info.Printf("Processing cotas for %s\n", operator)
	summary, errReport := orch.Run(ctx, operator, string(input))

	data := pterm.TableData{
		{"Metric", "Count"},
		{"Total de cotas", strconv.Itoa(summary.Total)},
		{"Já existentes (puladas)", strconv.Itoa(summary.Skipped)},
		{"A processar", strconv.Itoa(summary.ToProcess)},
		{"Sucesso", strconv.Itoa(summary.Success)},
		{"Erros benignos", strconv.Itoa(summary.Benign)},
		{"Erros críticos", strconv.Itoa(summary.Critical)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		logger.Warn("could not render summary table", zap.Error(err))
	}

	if errReport.Empty() {
		pterm.Success.Println("Batch finished with no errors")
	} else {
		pterm.Warning.Printf("Batch finished with errors, see %s\n", cfg.ErrorReportFile)
		if verbose {
			for _, line := range logging.Tail(sink.Lines(), 10) {
				pterm.Println(line)
			}
		}
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	operator := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	reconciler := reconcile.New(reconcile.PDFTextExtractor{}, logger)
	res, err := reconciler.Run(cfg.OperatorDir(operator))
	if err != nil {
		return err
	}

	data := pterm.TableData{
		{"Metric", "Count"},
		{"Arquivos verificados", strconv.Itoa(res.Scanned)},
		{"Renomeados", strconv.Itoa(res.Renamed)},
		{"Já corretos", strconv.Itoa(res.Correct)},
		{"Conflitos", strconv.Itoa(res.Conflicts)},
		{"Erros de leitura", strconv.Itoa(res.Errors)},
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runCount(cmd *cobra.Command, args []string) error {
	input, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}

	if legacyComments {
		records := cota.ParseLinesLegacy(string(input))
		pterm.Info.Printf("%d cota(s) válidas\n", len(records))
		return nil
	}

	records, invalid := cota.ParseLines(string(input))
	pterm.Info.Printf("%d cota(s) válidas, %d linha(s) inválidas\n", len(records), len(invalid))
	for _, line := range invalid {
		pterm.Warning.Printf("  linha %d: %s\n", line.Number, line.Text)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
