package handler

import (
	"context"
	"math/big"

	"github.com/alanyoungcy/orbitflash/internal/detector"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/engine"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
)

// StrategyControl is the strategy engine surface the API drives.
type StrategyControl interface {
	Health() engine.Health
	QueueStats() domain.QueueStats
	QueueSize() int
	ClearQueue()
	ByUrgency(u domain.Urgency) []domain.ScheduledEntry
	Queued(id string) (domain.ScheduledEntry, bool)

	ScorerConfig() scoring.Config
	UpdateScorerConfig(p scoring.Patch) (scoring.Config, error)
	RiskConfig() risk.Config
	UpdateRiskConfig(p risk.Patch) (risk.Config, error)

	BlockToken(token string)
	UnblockToken(token string)
	BlockVenue(venue string)
	UnblockVenue(venue string)
	Blacklist() (tokens, venues []string)
}

// GasControl is the fee optimizer surface.
type GasControl interface {
	Config() gas.Config
	UpdateConfig(p gas.Patch) (gas.Config, error)
	CurrentNetworkFees(ctx context.Context) domain.NetworkFees
	Recommendations(ctx context.Context) map[domain.Urgency]*big.Int
}

// ContractControl reads and replaces the dispatch target contract.
type ContractControl interface {
	ContractAddress() string
	SetContractAddress(addr string) error
}

// DetectorControl is the detector service surface.
type DetectorControl interface {
	BufferStatus() map[string]int
	Calculator() *detector.Calculator
}

// ConfigRecorder notes operator config changes in the audit trail.
type ConfigRecorder interface {
	Record(event string, detail map[string]any)
}

var (
	_ StrategyControl = (*engine.StrategyEngine)(nil)
	_ GasControl      = (*gas.Optimizer)(nil)
	_ ContractControl = (*engine.Dispatcher)(nil)
	_ DetectorControl = (*detector.Service)(nil)
)
