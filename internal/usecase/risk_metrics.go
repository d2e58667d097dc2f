package usecase

import (
	"math"
	"sync"
	"time"
)

const (
	ewmaLambda        = 0.94 // RiskMetrics-style decay for the variance estimate
	defaultDailyVol   = 0.05
	marketRefVol      = 0.04 // reference volatility for beta scaling
	varConfidence95   = 1.645
	varHorizonDays    = 1.0
	corrSampleWindow  = 32
	defaultPairCorr   = 0.5 // crypto pairs trend together absent better data
	minCorrSamples    = 8
	samplesPerDayNorm = 8640.0 // 10s monitor cadence
)

type symbolSeries struct {
	lastPrice float64
	ewmaVar   float64
	samples   int
	returns   []float64 // ring of recent log returns for correlation
}

// VolatilityEstimator derives per-symbol volatility from the price stream
// observed during monitor sweeps (EWMA of squared log returns), instead of
// fixed per-symbol constants. Until enough samples arrive it reports a
// conservative default.
type VolatilityEstimator struct {
	mu      sync.Mutex
	symbols map[string]*symbolSeries
}

func NewVolatilityEstimator() *VolatilityEstimator {
	return &VolatilityEstimator{symbols: make(map[string]*symbolSeries)}
}

// Observe feeds a price sample and returns the current daily volatility
// estimate for the symbol.
func (v *VolatilityEstimator) Observe(symbol string, price float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, ok := v.symbols[symbol]
	if !ok {
		s = &symbolSeries{}
		v.symbols[symbol] = s
	}

	if price <= 0 {
		return v.volLocked(s)
	}

	if s.lastPrice > 0 {
		r := math.Log(price / s.lastPrice)
		s.ewmaVar = ewmaLambda*s.ewmaVar + (1-ewmaLambda)*r*r
		s.samples++
		s.returns = append(s.returns, r)
		if len(s.returns) > corrSampleWindow {
			s.returns = s.returns[1:]
		}
	}
	s.lastPrice = price

	return v.volLocked(s)
}

// Volatility returns the estimate without feeding a sample.
func (v *VolatilityEstimator) Volatility(symbol string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.symbols[symbol]
	if !ok {
		return defaultDailyVol
	}
	return v.volLocked(s)
}

func (v *VolatilityEstimator) volLocked(s *symbolSeries) float64 {
	if s.samples < 2 {
		return defaultDailyVol
	}
	// Scale per-sample variance to a daily horizon.
	perSample := math.Sqrt(s.ewmaVar)
	vol := perSample * math.Sqrt(samplesPerDayNorm)
	if vol < 0.005 {
		vol = 0.005
	}
	if vol > 1.0 {
		vol = 1.0
	}
	return vol
}

// Beta scales the symbol's volatility against a market reference,
// capped to a sane band.
func (v *VolatilityEstimator) Beta(symbol string) float64 {
	beta := v.Volatility(symbol) / marketRefVol
	if beta < 0.25 {
		beta = 0.25
	}
	if beta > 3.0 {
		beta = 3.0
	}
	return beta
}

// Correlation estimates the pairwise return correlation of two symbols.
// With too few overlapping samples it falls back to a default.
func (v *VolatilityEstimator) Correlation(a, b string) float64 {
	if a == b {
		return 1.0
	}

	v.mu.Lock()
	sa, okA := v.symbols[a]
	sb, okB := v.symbols[b]
	var ra, rb []float64
	if okA {
		ra = append(ra, sa.returns...)
	}
	if okB {
		rb = append(rb, sb.returns...)
	}
	v.mu.Unlock()

	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < minCorrSamples {
		return defaultPairCorr
	}
	ra = ra[len(ra)-n:]
	rb = rb[len(rb)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += ra[i]
		sumB += rb[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := ra[i]-meanA, rb[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return defaultPairCorr
	}
	corr := cov / math.Sqrt(varA*varB)
	if corr < -1 {
		corr = -1
	}
	if corr > 1 {
		corr = 1
	}
	return corr
}

// ValueAtRisk computes the 95% one-day VaR for a position value.
func ValueAtRisk(positionValue, dailyVol float64) float64 {
	return positionValue * dailyVol * math.Sqrt(varHorizonDays) * varConfidence95
}

// ExpectedShortfall approximates the tail loss beyond VaR for a normal
// return assumption at the 95% level.
func ExpectedShortfall(valueAtRisk float64) float64 {
	return valueAtRisk * 1.25
}

// SharpeRatio relates realized+unrealized return to volatility over the
// position's holding period.
func SharpeRatio(pnlPct, dailyVol float64, held time.Duration) float64 {
	if dailyVol <= 0 {
		return 0
	}
	days := held.Hours() / 24
	if days < 1.0/24 {
		days = 1.0 / 24
	}
	periodVol := dailyVol * math.Sqrt(days) * 100 // same percent units as pnlPct
	if periodVol == 0 {
		return 0
	}
	return pnlPct / periodVol
}
