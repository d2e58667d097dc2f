package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// RiskMetrics is the per-position risk block, recomputed on every monitor sweep.
type RiskMetrics struct {
	ValueAtRisk           float64 `json:"value_at_risk"`
	ExpectedShortfall     float64 `json:"expected_shortfall"`
	Volatility            float64 `json:"volatility"` // daily, as a fraction
	Beta                  float64 `json:"beta"`
	SharpeRatio           float64 `json:"sharpe_ratio"`
	MaxFavorableExcursion float64 `json:"max_favorable_excursion"`
	MaxAdverseExcursion   float64 `json:"max_adverse_excursion"`
}

// Position represents a held asset resulting from a filled buy.
// Owned exclusively by the position manager while open; after the move to
// history it is never mutated again.
type Position struct {
	ID              string         `json:"id"` // derived from the originating order id
	Symbol          string         `json:"symbol"`
	Side            Side           `json:"side"`
	Quantity        float64        `json:"quantity"`
	EntryPrice      float64        `json:"entry_price"`
	CurrentPrice    float64        `json:"current_price"`
	UnrealizedPnL   float64        `json:"unrealized_pnl"`
	RealizedPnL     float64        `json:"realized_pnl"`
	PnLPercent      float64        `json:"pnl_percent"`
	StopLossPrice   float64        `json:"stop_loss_price"`
	TakeProfitPrice float64        `json:"take_profit_price"`
	Status          PositionStatus `json:"status"`
	OpenedAt        time.Time      `json:"opened_at"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	ExitReason      string         `json:"exit_reason,omitempty"`
	Strategy        string         `json:"strategy,omitempty"`
	Confidence      float64        `json:"confidence"`
	AutoSniped      bool           `json:"auto_sniped"`
	PaperTrade      bool           `json:"paper_trade"`
	Tags            []string       `json:"tags,omitempty"`
	Risk            RiskMetrics    `json:"risk"`
}

// Value returns the current market value of the position.
func (p *Position) Value() float64 {
	return p.CurrentPrice * p.Quantity
}

// PortfolioRisk aggregates across all open positions, recomputed once per
// monitor sweep rather than per position.
type PortfolioRisk struct {
	TotalValue        float64 `json:"total_value"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
	ConcentrationRisk float64 `json:"concentration_risk"` // Herfindahl index of position values
	CorrelationRisk   float64 `json:"correlation_risk"`   // average pairwise estimated correlation
}
