package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlatformCommand(ctx *commandContext) *cobra.Command {
	platformCmd := &cobra.Command{
		Use:   "platform",
		Short: "Inspect publish targets",
	}

	platformCmd.AddCommand(newPlatformListCommand(ctx))

	return platformCmd
}

func newPlatformListCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured platforms and their limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				platforms, err := a.store.ListPlatforms(cmd.Context(), !all)
				if err != nil {
					return err
				}
				if len(platforms) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No platforms configured")
					return nil
				}
				rows := make([][]string, 0, len(platforms))
				for _, platform := range platforms {
					maxSize := "-"
					if platform.MaxVideoBytes > 0 {
						maxSize = formatBytes(platform.MaxVideoBytes)
					}
					maxDuration := "-"
					if platform.MaxDurationSecs > 0 {
						maxDuration = formatDuration(float64(platform.MaxDurationSecs))
					}
					formats := "any"
					if len(platform.SupportedFormats) > 0 {
						formats = strings.Join(platform.SupportedFormats, ", ")
					}
					rows = append(rows, []string{
						platform.Name,
						yesNo(platform.Active),
						maxSize,
						maxDuration,
						formats,
					})
				}
				table := renderTable(
					[]string{"Platform", "Active", "Max Size", "Max Duration", "Formats"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include inactive platforms")
	return cmd
}
