package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// ExecutionStore keeps execution results reported by the executor.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore on pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// numericArg renders v for a NUMERIC column; nil becomes NULL.
func numericArg(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseNumeric(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: numeric %q is not an integer", *s)
	}
	return v, nil
}

// Record inserts rec.
func (s *ExecutionStore) Record(ctx context.Context, rec domain.AuditLog) error {
	opp, err := json.Marshal(rec.Opportunity)
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity %s: %w", rec.OpportunityID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_results (
			opportunity_id, transaction_hash, success, error, gas_used, profit_realized,
			active_bots, competing_gas_price, opportunity, executed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8::numeric, $9, $10)`,
		rec.OpportunityID, rec.TransactionHash, rec.ExecutionResult.Success, rec.ExecutionResult.Error,
		numericArg(rec.GasUsed), numericArg(rec.ProfitRealized),
		rec.CompetitorActivity.ActiveBots, numericArg(rec.CompetitorActivity.CompetingGasPrice),
		opp, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution result %s: %w", rec.OpportunityID, err)
	}
	return nil
}

// ListRecent returns up to limit results, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT opportunity_id, transaction_hash, success, error,
			gas_used::text, profit_realized::text, active_bots, competing_gas_price::text,
			opportunity, executed_at
		FROM execution_results
		ORDER BY executed_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution results: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var (
			rec                      domain.AuditLog
			gasUsed, profit, compGas *string
			opp                      []byte
		)
		if err := rows.Scan(
			&rec.OpportunityID, &rec.TransactionHash, &rec.ExecutionResult.Success, &rec.ExecutionResult.Error,
			&gasUsed, &profit, &rec.CompetitorActivity.ActiveBots, &compGas,
			&opp, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution result: %w", err)
		}
		if rec.GasUsed, err = parseNumeric(gasUsed); err != nil {
			return nil, err
		}
		if rec.ProfitRealized, err = parseNumeric(profit); err != nil {
			return nil, err
		}
		if rec.CompetitorActivity.CompetingGasPrice, err = parseNumeric(compGas); err != nil {
			return nil, err
		}
		if len(opp) > 0 {
			if err := json.Unmarshal(opp, &rec.Opportunity); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal opportunity %s: %w", rec.OpportunityID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list execution results: %w", err)
	}
	return out, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
