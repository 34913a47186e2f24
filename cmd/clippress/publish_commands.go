package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clippress/internal/publish"
	"clippress/internal/store"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish videos to social platforms",
	}

	publishCmd.AddCommand(newPublishCreateCommand(ctx))
	publishCmd.AddCommand(newPublishBulkCommand(ctx))
	publishCmd.AddCommand(newPublishListCommand(ctx))
	publishCmd.AddCommand(newPublishRetryCommand(ctx))
	publishCmd.AddCommand(newPublishCancelCommand(ctx))
	publishCmd.AddCommand(newPublishAnalyticsCommand(ctx))

	return publishCmd
}

func parseScheduleFlag(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("parse schedule time %q (want RFC3339, e.g. 2026-09-01T18:00:00Z): %w", value, err)
	}
	return &parsed, nil
}

func newPublishCreateCommand(ctx *commandContext) *cobra.Command {
	var platform string
	var caption string
	var hashtags string
	var scheduleAt string

	cmd := &cobra.Command{
		Use:   "create <video-id>",
		Short: "Publish a video to one platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			schedule, err := parseScheduleFlag(scheduleAt)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				upload, err := a.publish.Create(cmd.Context(), publish.Request{
					OwnerID:    owner,
					VideoID:    args[0],
					Platform:   platform,
					Caption:    caption,
					Hashtags:   hashtags,
					ScheduleAt: schedule,
				})
				if err != nil {
					return err
				}
				if schedule != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Scheduled upload %s to %s at %s\n",
						upload.ID, upload.Platform, schedule.Format(time.RFC3339))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Queued upload %s to %s\n", upload.ID, upload.Platform)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Target platform name")
	cmd.Flags().StringVar(&caption, "caption", "", "Post caption")
	cmd.Flags().StringVar(&hashtags, "hashtags", "", "Space-separated hashtags")
	cmd.Flags().StringVar(&scheduleAt, "schedule-at", "", "Publish at a future time (RFC3339)")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func newPublishBulkCommand(ctx *commandContext) *cobra.Command {
	var platforms []string
	var caption string
	var hashtags string
	var scheduleAt string

	cmd := &cobra.Command{
		Use:   "bulk <video-id>",
		Short: "Publish a video to several platforms at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			schedule, err := parseScheduleFlag(scheduleAt)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				results := a.publish.CreateBulk(cmd.Context(), owner, args[0], platforms, caption, hashtags, schedule)
				out := cmd.OutOrStdout()
				failures := 0
				for _, result := range results {
					if result.Err != nil {
						failures++
						fmt.Fprintf(out, "%s: %v\n", result.Platform, result.Err)
						continue
					}
					fmt.Fprintf(out, "%s: queued upload %s\n", result.Platform, result.Upload.ID)
				}
				if failures == len(results) && failures > 0 {
					return fmt.Errorf("all %d platforms rejected the request", failures)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "Target platform names")
	cmd.Flags().StringVar(&caption, "caption", "", "Post caption")
	cmd.Flags().StringVar(&hashtags, "hashtags", "", "Space-separated hashtags")
	cmd.Flags().StringVar(&scheduleAt, "schedule-at", "", "Publish at a future time (RFC3339)")
	_ = cmd.MarkFlagRequired("platforms")
	return cmd
}

func newPublishListCommand(ctx *commandContext) *cobra.Command {
	var videoID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List social media uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				uploads, err := a.store.ListUploadsByOwner(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if videoID != "" {
					filtered := uploads[:0]
					for _, upload := range uploads {
						if upload.VideoID == videoID {
							filtered = append(filtered, upload)
						}
					}
					uploads = filtered
				}
				if len(uploads) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No uploads")
					return nil
				}
				rows := make([][]string, 0, len(uploads))
				for _, upload := range uploads {
					rows = append(rows, []string{
						upload.ID,
						upload.VideoID,
						upload.Platform,
						string(upload.Status),
						orDash(upload.ExternalURL),
						formatOptionalTimestamp(upload.ScheduleAt),
						orDash(truncate(upload.ErrorMessage, 36)),
					})
				}
				table := renderTable(
					[]string{"ID", "Video", "Platform", "Status", "URL", "Scheduled", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&videoID, "video", "", "Only show uploads for this video")
	return cmd
}

func newPublishRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <upload-id>",
		Short: "Retry a failed upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				upload, err := a.publish.Retry(cmd.Context(), args[0], owner)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued upload %s to %s\n", upload.ID, upload.Platform)
				return nil
			})
		},
	}
}

func newPublishCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <upload-id>",
		Short: "Cancel a pending or scheduled upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				if err := a.publish.Cancel(cmd.Context(), args[0], owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled upload %s\n", args[0])
				return nil
			})
		},
	}
}

func newPublishAnalyticsCommand(ctx *commandContext) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "analytics <upload-id>",
		Short: "Show engagement analytics for a published upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				var analytics *store.PlatformAnalytics
				var err error
				if refresh {
					analytics, err = a.publish.RefreshAnalytics(cmd.Context(), args[0], owner)
				} else {
					upload, ownerErr := a.store.UploadForOwner(cmd.Context(), args[0], owner)
					if ownerErr != nil {
						return ownerErr
					}
					if upload == nil {
						return fmt.Errorf("upload %s not found", args[0])
					}
					analytics, err = a.store.AnalyticsForUpload(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				if analytics == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No analytics recorded; run with --refresh")
					return nil
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Views:      %d\n", analytics.Views)
				fmt.Fprintf(out, "Likes:      %d\n", analytics.Likes)
				fmt.Fprintf(out, "Comments:   %d\n", analytics.Comments)
				fmt.Fprintf(out, "Shares:     %d\n", analytics.Shares)
				fmt.Fprintf(out, "Engagement: %.2f%%\n", analytics.EngagementRate*100)
				fmt.Fprintf(out, "Refreshed:  %s\n", formatTimestamp(analytics.RefreshedAt))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch fresh counters from the platform first")
	return cmd
}
