package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"morpho-rate-alerts/internal/alerting"
	"morpho-rate-alerts/internal/service"
)

// Show prints the current market snapshot, stored state, and what the next run would do.
// It neither notifies nor writes state.
func (a *App) Show(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(a.Config, nil, a.newFetcher(), store, nil, a.Logger)
	now := time.Now().UTC()
	res, err := svc.Preview(ctx, now)
	if err != nil {
		return err
	}

	return writeStatus(os.Stdout, svc.Rule(), res, now)
}

func writeStatus(out io.Writer, rule alerting.Rule, res service.Result, now time.Time) error {
	snap := res.Snapshot
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Market\t%s\n", rule.MarketKey)
	fmt.Fprintf(writer, "Chain\t%d\n", rule.ChainID)
	fmt.Fprintf(writer, "Borrow\t%s\t%s\n", snap.Loan.Symbol, snap.Loan.DisplayAddress())
	fmt.Fprintf(writer, "Collateral\t%s\t%s\n", snap.Collateral.Symbol, snap.Collateral.DisplayAddress())
	fmt.Fprintf(writer, "Borrow APY\t%s%%\n", alerting.Percent(snap.BorrowAPY))
	fmt.Fprintf(writer, "Threshold\t%s%%\n", alerting.Percent(rule.Threshold))
	fmt.Fprintf(writer, "Utilization\t%s%%\n", alerting.Percent(snap.Utilization))
	fmt.Fprintf(writer, "Stored was_above\t%t\n", res.Previous.WasAbove)
	fmt.Fprintf(writer, "Now above\t%t\n", res.Decision.IsAbove)
	fmt.Fprintf(writer, "Next run\t%s\n", describeDecision(res.Decision))
	fmt.Fprintf(writer, "Checked at\t%s\n", now.Format(time.RFC3339))
	return writer.Flush()
}

func describeDecision(d alerting.Decision) string {
	switch d.Direction {
	case alerting.DirectionAbove:
		return "notify (crossed above)"
	case alerting.DirectionBelow:
		return "notify (fell below)"
	default:
		return "silent"
	}
}
