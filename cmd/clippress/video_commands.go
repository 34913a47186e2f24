package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clippress/internal/store"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Inspect and manage videos",
	}

	videoCmd.AddCommand(newVideoListCommand(ctx))
	videoCmd.AddCommand(newVideoStatusCommand(ctx))
	videoCmd.AddCommand(newVideoRetryCommand(ctx))
	videoCmd.AddCommand(newVideoCancelCommand(ctx))

	return videoCmd
}

func newVideoListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}

			var statuses []store.VideoStatus
			for _, raw := range listStatuses {
				status, ok := store.ParseVideoStatus(raw)
				if !ok {
					return fmt.Errorf("unknown video status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withApp(func(a *app) error {
				videos, err := a.store.ListVideosByOwner(cmd.Context(), owner, statuses...)
				if err != nil {
					return err
				}
				if len(videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos")
					return nil
				}
				rows := make([][]string, 0, len(videos))
				for _, video := range videos {
					rows = append(rows, []string{
						video.ID,
						truncate(video.Title, 40),
						string(video.Status),
						formatDuration(video.DurationSecs),
						formatBytes(video.SizeBytes),
						formatTimestamp(video.CreatedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Duration", "Size", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (uploading, processing, ready, failed)")
	return cmd
}

func newVideoStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <video-id>",
		Short: "Show processing detail for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				report, err := a.processing.Status(cmd.Context(), args[0], owner)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				video := report.Video
				fmt.Fprintf(out, "Video:    %s\n", video.ID)
				fmt.Fprintf(out, "Title:    %s\n", orDash(video.Title))
				fmt.Fprintf(out, "Status:   %s\n", video.Status)
				fmt.Fprintf(out, "Duration: %s\n", formatDuration(video.DurationSecs))
				fmt.Fprintf(out, "Size:     %s\n", formatBytes(video.SizeBytes))
				if len(video.Tags) > 0 {
					fmt.Fprintf(out, "Tags:     %s\n", strings.Join(video.Tags, ", "))
				}
				fmt.Fprintf(out, "Progress: %.0f%%\n", report.Progress)

				if len(report.Tasks) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(report.Tasks))
				for _, task := range report.Tasks {
					rows = append(rows, []string{
						string(task.Type),
						string(task.Status),
						orDash(truncate(task.ErrorMessage, 48)),
						formatOptionalTimestamp(task.CompletedAt),
					})
				}
				table := renderTable(
					[]string{"Task", "Status", "Error", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func newVideoRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <video-id>",
		Short: "Re-run the failed processing tasks of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				if err := a.processing.Retry(cmd.Context(), args[0], owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying failed tasks for video %s\n", args[0])
				return nil
			})
		},
	}
}

func newVideoCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <video-id>",
		Short: "Cancel the processing run of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				if err := a.processing.Cancel(cmd.Context(), args[0], owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled processing for video %s\n", args[0])
				return nil
			})
		},
	}
}
