package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// ResultRecorder persists execution records reported on "execution-result".
type ResultRecorder struct {
	bus    domain.SignalBus
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewResultRecorder creates a ResultRecorder.
func NewResultRecorder(bus domain.SignalBus, store domain.ExecutionStore, logger *slog.Logger) *ResultRecorder {
	return &ResultRecorder{
		bus:    bus,
		store:  store,
		logger: logger.With(slog.String("component", "result_recorder")),
	}
}

// Run consumes execution results until ctx is cancelled.
func (r *ResultRecorder) Run(ctx context.Context) error {
	ch, err := r.bus.Subscribe(ctx, domain.ChannelExecutionResult)
	if err != nil {
		return fmt.Errorf("engine: subscribe %s: %w", domain.ChannelExecutionResult, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.HandleMessage(ctx, data); err != nil {
				r.logger.Warn("execution result not recorded", slog.String("error", err.Error()))
			}
		}
	}
}

// HandleMessage decodes and stores one AuditLog.
func (r *ResultRecorder) HandleMessage(ctx context.Context, data []byte) error {
	var rec domain.AuditLog
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("engine: decode execution result: %w", err)
	}
	if rec.OpportunityID == "" {
		rec.OpportunityID = rec.Opportunity.ID
	}
	if rec.OpportunityID == "" {
		return fmt.Errorf("engine: execution result: %w: missing opportunity id", domain.ErrInvalidOpportunity)
	}
	if err := r.store.Record(ctx, rec); err != nil {
		return err
	}
	attrs := []any{
		slog.String("opportunity_id", rec.OpportunityID),
		slog.Bool("success", rec.ExecutionResult.Success),
	}
	if rec.TransactionHash != nil {
		attrs = append(attrs, slog.String("tx_hash", *rec.TransactionHash))
	}
	if rec.ProfitRealized != nil {
		attrs = append(attrs, slog.String("profit_wei", rec.ProfitRealized.String()))
	}
	r.logger.Info("execution result recorded", attrs...)
	return nil
}
