package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/alerting"
	"morpho-rate-alerts/internal/fetcher"
)

// SimulateAlert 用给定的 APY 渲染一条告警并通过真实通道发送，不读写状态。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.BorrowAPY < 0 || opts.Utilization < 0 {
		return errors.New("--apy 与 --utilization 不能为负数")
	}

	rule := alerting.Rule{
		MarketKey: a.Config.Market.UniqueKey,
		ChainID:   a.Config.Market.ChainID,
		Threshold: decimal.NewFromFloat(a.Config.Alerting.Threshold),
	}
	snap := fetcher.MarketSnapshot{
		UniqueKey:   rule.MarketKey,
		ChainID:     rule.ChainID,
		BorrowAPY:   decimal.NewFromFloat(opts.BorrowAPY),
		Utilization: decimal.NewFromFloat(opts.Utilization),
		Loan:        fetcher.Asset{Symbol: "SIMULATED"},
		Collateral:  fetcher.Asset{Symbol: "SIMULATED"},
	}

	direction := opts.Direction
	if direction == alerting.DirectionNone {
		direction = alerting.DirectionBelow
		if snap.BorrowAPY.GreaterThanOrEqual(rule.Threshold) {
			direction = alerting.DirectionAbove
		}
	}

	note := alerting.Notification{
		Direction: direction,
		Text:      "[simulated]\n" + alerting.RenderMessage(direction, rule, snap, time.Now()),
	}
	if err := a.newNotifier().Notify(ctx, note); err != nil {
		return err
	}
	a.Logger.Info().Str("direction", string(direction)).Msg("模拟告警已发送")
	return nil
}
