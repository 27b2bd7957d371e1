package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			payload, err := newAPIClient(cfg).health()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Status", payload.Status},
				{"Running", strconv.FormatBool(payload.Running)},
				{"Delivery", payload.Delivery},
				{"Total jobs", strconv.Itoa(payload.Total)},
				{"Pending", strconv.Itoa(payload.Pending)},
				{"Processing", strconv.Itoa(payload.Processing)},
				{"Completed", strconv.Itoa(payload.Completed)},
				{"Failed", strconv.Itoa(payload.Failed)},
			}
			table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
