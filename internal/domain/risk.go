package domain

// RiskLevel grades how risky an admitted opportunity is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskCheckResult is the outcome of a single admission check, or the
// aggregated verdict for an opportunity.
type RiskCheckResult struct {
	Check     string    `json:"check,omitempty"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"failureReason"`
	RiskLevel RiskLevel `json:"riskLevel"`
}

// RiskAssessment is the reduced verdict together with every individual check
// result, kept for diagnostics.
type RiskAssessment struct {
	Verdict RiskCheckResult   `json:"verdict"`
	Checks  []RiskCheckResult `json:"checks"`
}

// Passed reports whether the opportunity was admitted.
func (a RiskAssessment) Passed() bool {
	return a.Verdict.Passed
}
