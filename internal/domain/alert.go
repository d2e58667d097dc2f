package domain

import "time"

type AlertType string

const (
	AlertTradeExecuted   AlertType = "trade_executed"
	AlertTradeFailed     AlertType = "trade_failed"
	AlertPositionClosed  AlertType = "position_closed"
	AlertCircuitTripped  AlertType = "circuit_tripped"
	AlertEmergencyClose  AlertType = "emergency_close"
	AlertStalePosition   AlertType = "stale_position"
	AlertRiskEmergency   AlertType = "risk_emergency"
	AlertPreflightFailed AlertType = "preflight_failed"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// ExecutionAlert is an immutable event record kept in a bounded ring buffer.
// Only the Acknowledged flag is written after creation, and only through
// the engine's AcknowledgeAlert.
type ExecutionAlert struct {
	ID           string        `json:"id"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Symbol       string        `json:"symbol,omitempty"`
	PositionID   string        `json:"position_id,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Acknowledged bool          `json:"acknowledged"`
}
