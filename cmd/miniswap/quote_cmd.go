package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"miniSwap/internal/config"
	"miniSwap/internal/metrics"
	"miniSwap/internal/model"
	"miniSwap/internal/quote"
	"miniSwap/internal/units"
)

const shareDecimals = 18

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote swaps and liquidity changes against current reserves",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "swap <0to1|1to0> <amount>",
		Short: "Quote the output of selling amount of the input asset",
		Args:  cobra.ExactArgs(2),
		RunE:  withLoadedApp(runQuoteSwap),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "deposit <side> <amount>",
		Short: "Quote the matching amount of the other asset for a deposit",
		Args:  cobra.ExactArgs(2),
		RunE:  withLoadedApp(runQuoteDeposit),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "withdraw <shares|all>",
		Short: "Quote the assets returned for burning shares",
		Args:  cobra.ExactArgs(1),
		RunE:  withLoadedApp(runQuoteWithdraw),
	})
	return cmd
}

// withLoadedApp builds the app, loads the mirror and hands both to fn.
func withLoadedApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		unsubscribe, err := a.load(ctx)
		defer unsubscribe()
		if err != nil {
			return err
		}

		return fn(ctx, cmd, a, args)
	}
}

func runQuoteSwap(_ context.Context, cmd *cobra.Command, a *app, args []string) error {
	dir, err := model.ParseDirection(args[0])
	if err != nil {
		return err
	}
	assets := a.store.Assets()
	in, out := assets[dir.Input()], assets[dir.Output()]
	amountIn, err := config.ParseAmount(args[1], in.Decimals)
	if err != nil {
		return err
	}

	q, err := quote.Swap(a.store.Snapshot(), dir, amountIn)
	countQuote("swap", err)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "sell     %s %s\n", q.AmountIn.Display(in.Decimals), in.Label())
	fmt.Fprintf(w, "after fee %s %s\n", q.AmountInWithFee.Display(in.Decimals), in.Label())
	fmt.Fprintf(w, "receive  %s %s\n", q.AmountOut.Display(out.Decimals), out.Label())
	if in.NeedsGrant(amountIn) {
		fmt.Fprintf(w, "note     %s allowance must be granted first\n", in.Label())
	}
	return nil
}

func runQuoteDeposit(_ context.Context, cmd *cobra.Command, a *app, args []string) error {
	assets := a.store.Assets()
	side, err := config.ParseSide(args[0], assets)
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount(args[1], assets[side].Decimals)
	if err != nil {
		return err
	}

	snap := a.store.Snapshot()
	q, err := quote.Deposit(snap, amount, side)
	countQuote("deposit", err)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if q.FreeRatio {
		fmt.Fprintf(w, "pool is empty: any positive amount of %s sets the initial price\n", assets[side.Other()].Label())
		fmt.Fprintf(w, "pool share %s%%\n", quote.ProjectedPoolShare(snap, amount).StringFixed(2))
		return nil
	}
	fmt.Fprintf(w, "deposit  %s %s + %s %s\n",
		q.Amount0.Display(assets[0].Decimals), assets[0].Label(),
		q.Amount1.Display(assets[1].Decimals), assets[1].Label())
	fmt.Fprintf(w, "shares   ~%s (estimate)\n", q.EstimatedShares.Display(shareDecimals))
	fmt.Fprintf(w, "pool share %s%% (estimate)\n", quote.ProjectedPoolShare(snap, q.Amount0).StringFixed(2))
	return nil
}

func runQuoteWithdraw(_ context.Context, cmd *cobra.Command, a *app, args []string) error {
	snap := a.store.Snapshot()
	shares, err := parseShares(args[0], snap)
	if err != nil {
		return err
	}

	q, err := quote.Withdrawal(snap, shares)
	countQuote("withdraw", err)
	if err != nil {
		return err
	}

	assets := a.store.Assets()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "burn     %s shares\n", q.Shares.Display(shareDecimals))
	fmt.Fprintf(w, "receive  %s %s + %s %s\n",
		q.Amount0.Display(assets[0].Decimals), assets[0].Label(),
		q.Amount1.Display(assets[1].Decimals), assets[1].Label())
	return nil
}

func parseShares(input string, snap model.PoolSnapshot) (units.Amount, error) {
	if strings.EqualFold(strings.TrimSpace(input), "all") {
		return snap.CallerShares, nil
	}
	return config.ParseAmount(input, shareDecimals)
}

func countQuote(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.QuoteRequests.WithLabelValues(kind, status).Inc()
}
