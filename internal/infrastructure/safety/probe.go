package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
)

const slowProbeThreshold = 3 * time.Second

// ExchangeProbe implements domain.SafetyProbe by timing a live ticker
// fetch against a reference symbol. An unreachable exchange is critical;
// a slow one is a warning.
type ExchangeProbe struct {
	exchange  domain.Exchange
	refSymbol string
	logger    *zap.Logger
}

func NewExchangeProbe(exchange domain.Exchange, refSymbol string, logger *zap.Logger) *ExchangeProbe {
	if refSymbol == "" {
		refSymbol = "BTCUSDT"
	}
	return &ExchangeProbe{exchange: exchange, refSymbol: refSymbol, logger: logger}
}

func (p *ExchangeProbe) HealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	start := time.Now()
	_, err := p.exchange.GetTickerPrice(ctx, p.refSymbol)
	elapsed := time.Since(start)

	if err != nil {
		p.logger.Error("Safety probe failed", zap.Error(err))
		return domain.HealthCritical, nil
	}
	if elapsed > slowProbeThreshold {
		p.logger.Warn("Safety probe slow", zap.Duration("elapsed", elapsed))
		return domain.HealthWarning, nil
	}
	return domain.HealthSafe, nil
}
