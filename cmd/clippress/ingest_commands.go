package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"clippress/internal/ingest"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Bring videos into the pipeline",
	}

	ingestCmd.AddCommand(newIngestFileCommand(ctx))
	ingestCmd.AddCommand(newIngestYouTubeCommand(ctx))
	ingestCmd.AddCommand(newIngestDownloadsCommand(ctx))

	return ingestCmd
}

func newIngestFileCommand(ctx *commandContext) *cobra.Command {
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Upload a local video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}

			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			file, err := os.Open(absPath)
			if err != nil {
				return fmt.Errorf("open file: %w", err)
			}
			defer file.Close()

			return ctx.withApp(func(a *app) error {
				video, err := a.ingest.IngestUpload(cmd.Context(), ingest.UploadRequest{
					OwnerID:     owner,
					Title:       title,
					Description: description,
					Filename:    info.Name(),
					SizeBytes:   info.Size(),
					Content:     file,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as video %s (%s)\n",
					filepath.Base(absPath), video.ID, video.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Video title (defaults to the file name)")
	cmd.Flags().StringVar(&description, "description", "", "Video description")
	return cmd
}

func newIngestYouTubeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "youtube <url>",
		Short: "Queue a YouTube video for download and ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				download, err := a.ingest.IngestYouTube(cmd.Context(), owner, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued YouTube download %s\n", download.ID)
				return nil
			})
		},
	}
}

func newIngestDownloadsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "downloads",
		Short: "List YouTube downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				downloads, err := a.store.ListDownloadsByOwner(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if len(downloads) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No downloads")
					return nil
				}
				rows := make([][]string, 0, len(downloads))
				for _, d := range downloads {
					rows = append(rows, []string{
						d.ID,
						truncate(d.SourceURL, 48),
						string(d.Status),
						orDash(d.VideoID),
						orDash(truncate(d.ErrorMessage, 40)),
						formatTimestamp(d.CreatedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Source", "Status", "Video", "Error", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}
