package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"miniSwap/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the action journal",
		RunE:  runHistory,
	}
	cmd.Flags().Uint64("action", 0, "only show transitions of this action id")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	only, _ := cmd.Flags().GetUint64("action")
	transitions, err := storage.NewJsonlStorage(cfg.Journal).ReadTransitions()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "AT\tACTION\tKIND\tFROM\tTO\tTX\tERROR")
	for _, t := range transitions {
		if only != 0 && t.ActionID != only {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", t.At, t.ActionID, t.Kind, t.From, t.To, t.TxHash, t.Error)
	}
	return nil
}
