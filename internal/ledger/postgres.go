package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/tradeguard/internal/database"
	"github.com/yourusername/tradeguard/internal/models"
)

// PostgresLedger is the durable outcome ledger. Append-only: no UPDATE or
// DELETE statement exists in this file.
type PostgresLedger struct {
	db *database.DB
}

// NewPostgresLedger creates a new PostgreSQL-backed ledger
func NewPostgresLedger(db *database.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the outcome table if it does not exist
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS trade_outcomes (
			seq             BIGSERIAL PRIMARY KEY,
			id              UUID NOT NULL,
			strategy_id     TEXT NOT NULL,
			regime          TEXT NOT NULL,
			session         TEXT NOT NULL,
			parameter_value DOUBLE PRECISION NOT NULL,
			realized_pnl    NUMERIC NOT NULL,
			excursions      JSONB NOT NULL,
			duration_ns     BIGINT NOT NULL,
			exit_reason     TEXT NOT NULL,
			canary          BOOLEAN NOT NULL,
			occurred_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trade_outcomes_cohort
			ON trade_outcomes (strategy_id, regime, session, occurred_at);
	`
	if _, err := l.db.GetPool().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure outcome schema: %w", err)
	}
	return nil
}

// Record appends an outcome row
func (l *PostgresLedger) Record(ctx context.Context, outcome *models.TradeOutcome) error {
	excursions, err := json.Marshal(outcome.Excursions)
	if err != nil {
		return fmt.Errorf("failed to encode excursions: %w", err)
	}

	query := `
		INSERT INTO trade_outcomes (id, strategy_id, regime, session, parameter_value,
		                            realized_pnl, excursions, duration_ns, exit_reason, canary, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = l.db.GetPool().Exec(ctx, query,
		outcome.ID, outcome.Cohort.StrategyID, outcome.Cohort.Regime, outcome.Cohort.Session,
		outcome.ParameterValue, outcome.RealizedPnL.String(), excursions,
		outcome.Duration.Nanoseconds(), string(outcome.ExitReason), outcome.Canary, outcome.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Query returns matching records within an optional recency window, in
// insertion order
func (l *PostgresLedger) Query(ctx context.Context, cohort models.CohortKey, window time.Duration) ([]*models.TradeOutcome, error) {
	query := `
		SELECT id, strategy_id, regime, session, parameter_value, realized_pnl::text,
		       excursions, duration_ns, exit_reason, canary, occurred_at
		FROM trade_outcomes
		WHERE strategy_id = $1 AND regime = $2 AND session = $3
	`
	args := []interface{}{cohort.StrategyID, cohort.Regime, cohort.Session}
	if window > 0 {
		query += " AND occurred_at >= $4"
		args = append(args, time.Now().Add(-window))
	}
	query += " ORDER BY seq"

	rows, err := l.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]*models.TradeOutcome, 0)
	for rows.Next() {
		o := &models.TradeOutcome{}
		var (
			pnl        string
			excursions []byte
			durationNs int64
			exitReason string
		)
		if err := rows.Scan(
			&o.ID, &o.Cohort.StrategyID, &o.Cohort.Regime, &o.Cohort.Session,
			&o.ParameterValue, &pnl, &excursions, &durationNs, &exitReason, &o.Canary, &o.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.RealizedPnL, err = decimal.NewFromString(pnl)
		if err != nil {
			return nil, fmt.Errorf("failed to parse realized pnl: %w", err)
		}
		if err := json.Unmarshal(excursions, &o.Excursions); err != nil {
			return nil, fmt.Errorf("failed to decode excursions: %w", err)
		}
		o.Duration = time.Duration(durationNs)
		o.ExitReason = models.ExitReason(exitReason)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// Size returns the total record count
func (l *PostgresLedger) Size(ctx context.Context) (int, error) {
	var count int
	err := l.db.GetPool().QueryRow(ctx, "SELECT COUNT(*) FROM trade_outcomes").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return count, nil
}

// Cohorts returns every cohort with at least one record
func (l *PostgresLedger) Cohorts(ctx context.Context) ([]models.CohortKey, error) {
	rows, err := l.db.GetPool().Query(ctx,
		"SELECT DISTINCT strategy_id, regime, session FROM trade_outcomes")
	if err != nil {
		return nil, fmt.Errorf("failed to list cohorts: %w", err)
	}
	defer rows.Close()

	cohorts := make([]models.CohortKey, 0)
	for rows.Next() {
		var key models.CohortKey
		if err := rows.Scan(&key.StrategyID, &key.Regime, &key.Session); err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		cohorts = append(cohorts, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cohorts: %w", err)
	}
	return cohorts, nil
}
