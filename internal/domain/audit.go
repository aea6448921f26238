package domain

import (
	"math/big"
	"time"
)

// Audit event names written by the pipeline.
const (
	AuditOpportunityRejected   = "opportunity_rejected"
	AuditOpportunityScheduled  = "opportunity_scheduled"
	AuditOpportunityDispatched = "opportunity_dispatched"
	AuditOpportunityDropped    = "opportunity_dropped"
	AuditTransactionReady      = "transaction_ready"
	AuditConfigChanged         = "config_changed"
	AuditArchived              = "audit_archived"
)

// ExecutionResult reports whether an on-chain execution succeeded.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CompetitorSnapshot captures observed MEV competition at execution time.
type CompetitorSnapshot struct {
	ActiveBots        int      `json:"activeBots"`
	CompetingGasPrice *big.Int `json:"competingGasPrice"`
}

// AuditLog is the execution record reported back by the execution
// collaborator on the "execution-result" channel.
type AuditLog struct {
	Timestamp          time.Time          `json:"timestamp"`
	TransactionHash    *string            `json:"transactionHash"`
	OpportunityID      string             `json:"opportunityId"`
	Opportunity        Opportunity        `json:"opportunity"`
	ExecutionResult    ExecutionResult    `json:"executionResult"`
	GasUsed            *big.Int           `json:"gasUsed"`
	ProfitRealized     *big.Int           `json:"profitRealized"`
	CompetitorActivity CompetitorSnapshot `json:"competitorActivity"`
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Event  string
}
