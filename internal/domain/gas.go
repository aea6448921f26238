package domain

import "math/big"

// GasStrategy is the fee strategy for one dispatch attempt.
type GasStrategy struct {
	GasPrice    *big.Int `json:"gasPrice"`
	GasLimit    uint64   `json:"gasLimit"`
	PriorityFee *big.Int `json:"priorityFee"`
}

// Valid reports whether the strategy can be attached to a transaction.
func (g GasStrategy) Valid() bool {
	return g.GasPrice != nil && g.GasPrice.Sign() > 0 &&
		g.PriorityFee != nil && g.PriorityFee.Sign() >= 0 &&
		g.GasLimit > 0
}

// FeeSourceKind names where a set of network fees came from.
type FeeSourceKind string

const (
	FeeSourceChain    FeeSourceKind = "arbgasinfo"
	FeeSourceStandard FeeSourceKind = "eth_gasPrice"
	FeeSourceDefault  FeeSourceKind = "default"
)

// NetworkFees is a snapshot of fee-market conditions, in wei.
type NetworkFees struct {
	BaseFee     *big.Int      `json:"baseFee"`
	L1BaseFee   *big.Int      `json:"l1BaseFee"`
	PriorityFee *big.Int      `json:"priorityFee"`
	GasPrice    *big.Int      `json:"gasPrice"`
	Source      FeeSourceKind `json:"source"`
}

// ArbitrageParams is the argument tuple of the on-chain executeArbitrage call.
type ArbitrageParams struct {
	TokenIn      string   `json:"tokenIn"`
	TokenOut     string   `json:"tokenOut"`
	AmountIn     string   `json:"amountIn"`
	MinProfit    string   `json:"minProfit"`
	DexAddresses []string `json:"dexAddresses"`
	SwapCalldata []string `json:"swapCalldata"`
}

// TransactionPayload is the finalized instruction published on
// "transaction-ready" for the execution collaborator.
type TransactionPayload struct {
	ID              string          `json:"id"`
	Opportunity     Opportunity     `json:"opportunity"`
	GasStrategy     GasStrategy     `json:"gasStrategy"`
	ContractAddress string          `json:"contractAddress"`
	ArbitrageParams ArbitrageParams `json:"arbitrageParams"`
	EstimatedProfit string          `json:"estimatedProfit"`
	Timestamp       int64           `json:"timestamp"`
}
