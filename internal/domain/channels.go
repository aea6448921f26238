package domain

// Message bus channel names shared by every stage.
const (
	ChannelPriceUpdate        = "price-update"
	ChannelOpportunityNew     = "opportunity-new"
	ChannelOpportunityExecute = "opportunity-execute"
	ChannelTransactionReady   = "transaction-ready"
	ChannelExecutionResult    = "execution-result"

	// StreamTransactionReady is the durable copy of ChannelTransactionReady.
	StreamTransactionReady = "stream:transaction-ready"
)
