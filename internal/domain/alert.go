package domain

// AlertLevel is the severity of a monitoring alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// Rank orders alert levels from least to most severe.
func (l AlertLevel) Rank() int {
	switch l {
	case AlertInfo:
		return 0
	case AlertWarning:
		return 1
	case AlertError:
		return 2
	case AlertCritical:
		return 3
	default:
		return -1
	}
}

// MonitoringAlert is an operator-facing notification.
type MonitoringAlert struct {
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp int64      `json:"timestamp"`
	Service   string     `json:"service"`
}
