package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"miniSwap/internal/config"
	"miniSwap/internal/model"
	"miniSwap/internal/orchestrator"
	"miniSwap/internal/quote"
	"miniSwap/internal/units"
)

var maxAllowance = units.Max()

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <side>",
		Short: "Grant the pool an unlimited allowance on one asset",
		Args:  cobra.ExactArgs(1),
		RunE: withLoadedApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			side, err := config.ParseSide(args[0], a.store.Assets())
			if err != nil {
				return err
			}
			return execute(ctx, cmd, a, orchestrator.Request{Kind: model.ActionGrant, Side: side})
		}),
	}
}

func newSwapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap <0to1|1to0> <amount>",
		Short: "Sell amount of the input asset",
		Args:  cobra.ExactArgs(2),
		RunE: withLoadedApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			dir, err := model.ParseDirection(args[0])
			if err != nil {
				return err
			}
			in := a.store.Asset(dir.Input())
			amountIn, err := config.ParseAmount(args[1], in.Decimals)
			if err != nil {
				return err
			}
			q, err := quote.Swap(a.store.Snapshot(), dir, amountIn)
			if err != nil {
				return err
			}
			out := a.store.Asset(dir.Output())
			fmt.Fprintf(cmd.OutOrStdout(), "expected %s %s\n", q.AmountOut.Display(out.Decimals), out.Label())
			return execute(ctx, cmd, a, orchestrator.Request{Kind: model.ActionSwap, Direction: dir, AmountIn: amountIn})
		}),
	}
}

func newAddLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-liquidity <amount> [other-amount]",
		Short: "Deposit both assets; the other side is derived from reserves unless given",
		Args:  cobra.RangeArgs(1, 2),
	}
	cmd.Flags().String("side", "0", "side the first amount refers to (0, 1 or a symbol)")
	cmd.RunE = withLoadedApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		assets := a.store.Assets()
		sideFlag, _ := cmd.Flags().GetString("side")
		side, err := config.ParseSide(sideFlag, assets)
		if err != nil {
			return err
		}
		amount, err := config.ParseAmount(args[0], assets[side].Decimals)
		if err != nil {
			return err
		}

		snap := a.store.Snapshot()
		q, err := quote.Deposit(snap, amount, side)
		if err != nil {
			return err
		}
		amounts := [2]units.Amount{q.Amount0, q.Amount1}
		if len(args) == 2 {
			other, err := config.ParseAmount(args[1], assets[side.Other()].Decimals)
			if err != nil {
				return err
			}
			amounts[side.Other()] = other
		} else if q.FreeRatio {
			return fmt.Errorf("pool is empty: give the %s amount to set the initial price", assets[side.Other()].Label())
		}

		pair, err := quote.DepositPair(snap, amounts[0], amounts[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deposit %s %s + %s %s for ~%s shares (estimate)\n",
			pair.Amount0.Display(assets[0].Decimals), assets[0].Label(),
			pair.Amount1.Display(assets[1].Decimals), assets[1].Label(),
			pair.EstimatedShares.Display(shareDecimals))
		return execute(ctx, cmd, a, orchestrator.Request{Kind: model.ActionAddLiquidity, Amount0: pair.Amount0, Amount1: pair.Amount1})
	})
	return cmd
}

func newRemoveLiquidityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-liquidity <shares|all>",
		Short: "Burn shares for a proportional amount of both assets",
		Args:  cobra.ExactArgs(1),
		RunE: withLoadedApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			snap := a.store.Snapshot()
			shares, err := parseShares(args[0], snap)
			if err != nil {
				return err
			}
			q, err := quote.Withdrawal(snap, shares)
			if err != nil {
				return err
			}
			assets := a.store.Assets()
			fmt.Fprintf(cmd.OutOrStdout(), "expected %s %s + %s %s\n",
				q.Amount0.Display(assets[0].Decimals), assets[0].Label(),
				q.Amount1.Display(assets[1].Decimals), assets[1].Label())
			return execute(ctx, cmd, a, orchestrator.Request{Kind: model.ActionRemoveLiquidity, Shares: shares})
		}),
	}
}

// execute submits req, prints its transitions and waits for a terminal state.
// Interrupting before the main write is broadcast cancels the action.
func execute(ctx context.Context, cmd *cobra.Command, a *app, req orchestrator.Request) error {
	transitions, unsubscribe := a.orch.Subscribe(32)
	defer unsubscribe()

	action, err := a.orch.Submit(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for t := range transitions {
			if t.ActionID != action.ID {
				continue
			}
			line := fmt.Sprintf("[%d] %s", t.ActionID, t.To)
			if t.TxHash != "" {
				line += " tx=" + t.TxHash
			}
			if t.Error != "" {
				line += " error=" + t.Error
			}
			fmt.Fprintln(out, line)
		}
	}()

	final, err := a.orch.Wait(ctx, action.ID)
	if err != nil {
		if cerr := a.orch.Cancel(action.ID); cerr != nil {
			a.logger.Warn("action keeps running on the ledger", zap.Uint64("action", action.ID), zap.Error(cerr))
		}
		unsubscribe()
		<-done
		return err
	}
	unsubscribe()
	<-done

	if final.State == model.StateFailed {
		return fmt.Errorf("%s failed: %s", final.Kind, final.Err)
	}
	if reloadErr := a.store.LastReloadError(); reloadErr != nil {
		a.logger.Warn("settled but pool state could not be refreshed", zap.Error(reloadErr))
		return nil
	}
	printStats(out, a.store.Snapshot(), a.store.Assets())
	return nil
}
