package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func predictCmd() *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "predict [image]",
		Short: "Classify one image file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			a, err := loadApp(cmd.Context(), true, record)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.service()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if !record {
				p, err := svc.Classify(cmd.Context(), data)
				if err != nil {
					return err
				}
				return enc.Encode(p)
			}

			res, err := svc.PredictImage(cmd.Context(), data)
			if err != nil {
				return err
			}
			if err := enc.Encode(res.Prediction); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Recorded as entry %d\n", res.Entry.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "save the prediction to history")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or prune prediction history",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyDeleteCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent predictions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), false, true)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No predictions recorded.")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%6d  %s  %-18s %6.2f%%\n",
					e.ID, e.Timestamp.Local().Format(time.DateTime), e.PredictedDisease, e.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max entries to show")
	return cmd
}

func historyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			a, err := loadApp(cmd.Context(), false, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ledger.DeleteByID(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry ID %d.\n", id)
			return nil
		},
	}
}
