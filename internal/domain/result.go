package domain

import "time"

// TradeResult describes a filled (or simulated) buy produced by the
// execution engine. It is the handoff record between order placement and
// position tracking.
type TradeResult struct {
	OrderID       string    `json:"order_id"`
	TargetID      string    `json:"target_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	Status        string    `json:"status"`
	Strategy      string    `json:"strategy,omitempty"`
	Confidence    float64   `json:"confidence"`
	StopLossPct   float64   `json:"stop_loss_pct"`
	TakeProfitPct float64   `json:"take_profit_pct"`
	AutoSniped    bool      `json:"auto_sniped"`
	PaperTrade    bool      `json:"paper_trade"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// OperationResult is the structured envelope returned by every public
// orchestrator operation. The caller never sees a raw error value.
type OperationResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) OperationResult {
	return OperationResult{Success: true, Data: data}
}

func Fail(err error) OperationResult {
	if err == nil {
		return OperationResult{Success: false, Error: "unknown error"}
	}
	return OperationResult{Success: false, Error: err.Error()}
}

// ExecutionStats are running counters owned by the execution engine.
type ExecutionStats struct {
	TotalTrades      int     `json:"total_trades"`
	SuccessfulTrades int     `json:"successful_trades"`
	FailedTrades     int     `json:"failed_trades"`
	RiskBlocked      int     `json:"risk_blocked"`
	DailyTrades      int     `json:"daily_trades"`
	TotalVolume      float64 `json:"total_volume"` // quote currency
}

// PerformanceMetrics are derived from closed-position history on demand.
type PerformanceMetrics struct {
	ClosedPositions int     `json:"closed_positions"`
	WinCount        int     `json:"win_count"`
	LossCount       int     `json:"loss_count"`
	WinRate         float64 `json:"win_rate"`
	RealizedPnL     float64 `json:"realized_pnl"`
	AveragePnL      float64 `json:"average_pnl"`
	BestTrade       float64 `json:"best_trade"`
	WorstTrade      float64 `json:"worst_trade"`
}
