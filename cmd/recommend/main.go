package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/tradeguard/internal/config"
	"github.com/yourusername/tradeguard/internal/database"
	"github.com/yourusername/tradeguard/internal/excursion"
	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/logger"
	"github.com/yourusername/tradeguard/internal/models"
	"github.com/yourusername/tradeguard/internal/optimizer"
	"github.com/yourusername/tradeguard/internal/stats"
)

var (
	configFile string
	cohortFlag string
	jsonOutput bool

	appLog   *logrus.Logger
	cfg      *config.Config
	db       *database.DB
	outcomes ledger.OutcomeLedger
)

// cohortReport is one row of the recommendation report
type cohortReport struct {
	Cohort         string                          `json:"cohort"`
	SampleSize     int                             `json:"sample_size"`
	Confidence     string                          `json:"confidence"`
	Recommendation *models.ParameterRecommendation `json:"recommendation,omitempty"`
	Threshold      *models.ExcursionThreshold      `json:"threshold,omitempty"`
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVar(&cohortFlag, "cohort", "", "Restrict the report to one cohort (strategy:regime:session)")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON")
}

var rootCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Produce a one-shot parameter recommendation report",
	Long:  `Queries the outcome ledger and prints per-cohort confidence, excursion thresholds and parameter recommendations without promoting anything.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context())
	},
}

func main() {
	defer func() {
		if db != nil {
			db.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

func setupDependencies(ctx context.Context) error {
	appLog = logger.NewLogger("warn")

	if !cfg.Features.PersistentLedgerEnabled {
		return fmt.Errorf("the report requires the persistent ledger (features.persistent_ledger_enabled)")
	}

	var err error
	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	outcomes = ledger.NewPostgresLedger(db)
	return nil
}

func runReport(ctx context.Context) error {
	estimator := stats.NewEstimator(stats.DefaultConfig())
	analyzer := excursion.NewAnalyzer(excursion.Config{
		Checkpoint:      cfg.ExcursionCheckpoint(),
		BucketEdges:     cfg.Excursion.BucketEdges,
		StopOutFloor:    cfg.Excursion.StopOutFloor,
		SampleSizeFloor: cfg.Excursion.SampleSizeFloor,
	}, outcomes, estimator, appLog)
	opt := optimizer.NewOptimizer(optimizer.Config{
		ImprovementMargin: cfg.Optimizer.ImprovementMargin,
		CacheTTL:          time.Duration(cfg.Optimizer.CacheTTLSeconds) * time.Second,
	}, outcomes, estimator, appLog)

	cohorts, err := selectCohorts(ctx)
	if err != nil {
		return err
	}

	reports := make([]cohortReport, 0, len(cohorts))
	for _, cohort := range cohorts {
		report, err := buildReport(ctx, cohort, estimator, analyzer, opt)
		if err != nil {
			appLog.WithError(err).WithField("cohort", cohort.String()).Warn("Skipping cohort")
			continue
		}
		reports = append(reports, report)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	printReports(reports)
	return nil
}

func selectCohorts(ctx context.Context) ([]models.CohortKey, error) {
	if cohortFlag != "" {
		cohort, err := parseCohort(cohortFlag)
		if err != nil {
			return nil, err
		}
		return []models.CohortKey{cohort}, nil
	}
	return outcomes.Cohorts(ctx)
}

func buildReport(
	ctx context.Context,
	cohort models.CohortKey,
	estimator *stats.Estimator,
	analyzer *excursion.Analyzer,
	opt *optimizer.Optimizer,
) (cohortReport, error) {
	history, err := outcomes.Query(ctx, cohort, 0)
	if err != nil {
		return cohortReport{}, err
	}

	report := cohortReport{
		Cohort:     cohort.String(),
		SampleSize: len(history),
		Confidence: estimator.Level(len(history)).String(),
	}
	if len(history) == 0 {
		return report, nil
	}

	current := history[len(history)-1].ParameterValue
	candidates := distinctValues(history)
	if rec, err := opt.Recommend(ctx, cohort, current, candidates); err == nil {
		report.Recommendation = rec
	}
	if threshold, err := analyzer.ComputeThreshold(ctx, cohort); err == nil {
		report.Threshold = threshold
	}
	return report, nil
}

func printReports(reports []cohortReport) {
	if len(reports) == 0 {
		fmt.Println("No cohorts found in the outcome ledger.")
		return
	}

	for _, r := range reports {
		fmt.Printf("Cohort:     %s\n", r.Cohort)
		fmt.Printf("Samples:    %d (%s confidence)\n", r.SampleSize, r.Confidence)

		if rec := r.Recommendation; rec != nil {
			verdict := "hold"
			if rec.Apply {
				verdict = "apply"
			}
			fmt.Printf("Parameter:  %.4g -> %.4g [%s]\n", rec.CurrentValue, rec.CandidateValue, verdict)
			fmt.Printf("            %s\n", rec.Justification)
		} else {
			fmt.Println("Parameter:  no recommendation")
		}

		if th := r.Threshold; th != nil {
			fmt.Printf("Excursion:  exit beyond %.4g ticks at %s (stop-out p=%.2f, n=%d)\n",
				th.Magnitude, th.Checkpoint, th.StopOutProbability, th.SampleSize)
		} else {
			fmt.Println("Excursion:  no threshold derived")
		}
		fmt.Println()
	}
}

func parseCohort(s string) (models.CohortKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return models.CohortKey{}, fmt.Errorf("invalid cohort %q, expected strategy:regime:session", s)
	}
	return models.CohortKey{StrategyID: parts[0], Regime: parts[1], Session: parts[2]}, nil
}

func distinctValues(history []*models.TradeOutcome) []float64 {
	seen := make(map[float64]struct{}, 4)
	values := make([]float64, 0, 4)
	for _, o := range history {
		if _, ok := seen[o.ParameterValue]; ok {
			continue
		}
		seen[o.ParameterValue] = struct{}{}
		values = append(values, o.ParameterValue)
	}
	return values
}
