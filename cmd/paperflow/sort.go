package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/paperflow/internal/cli"
	"github.com/Veraticus/paperflow/internal/model"
)

func sortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort [file-id...]",
		Short: "Classify and file documents",
		Long: `Process documents through the sorting pipeline.

With file ids as arguments, only those documents are processed.
Without arguments, every document currently in the inbox folder is
processed in order.`,
		RunE: runSort,
	}

	cmd.Flags().IntP("limit", "n", 0, "Maximum number of inbox documents to process (0 = all)")
	_ = viper.BindPFlag("sort.limit", cmd.Flags().Lookup("limit"))

	return cmd
}

func runSort(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	slog.Info(cli.FormatTitle("Sorting documents..."))

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ids := args
	if len(ids) == 0 {
		docs, err := app.vault.ListInbox(ctx, viper.GetInt("sort.limit"))
		if err != nil {
			return fmt.Errorf("failed to list inbox: %w", err)
		}
		for _, doc := range docs {
			ids = append(ids, doc.ID)
		}
	}

	if len(ids) == 0 {
		slog.Info(cli.FormatInfo("Inbox is empty, nothing to do"))
		return nil
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Sorting documents...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var processed, skipped, failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		outcome, err := app.engine.Process(ctx, id)
		switch outcome.Status {
		case model.StatusProcessed:
			processed++
		case model.StatusSkipped:
			skipped++
		case model.StatusError:
			failed++
			slog.Error(cli.FormatError(fmt.Sprintf("%s: %v", id, err)))
		}
		_ = bar.Add(1)
	}
	fmt.Fprintln(os.Stderr)

	summary := fmt.Sprintf(`Processed: %d
Skipped:   %d
Failed:    %d`, processed, skipped, failed)
	slog.Info(cli.RenderBox(fmt.Sprintf("%s Sorting Complete", cli.FolderIcon), summary))

	if skipped > 0 {
		slog.Warn(cli.FormatWarning(fmt.Sprintf("%d document(s) skipped", skipped)))
	}
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}
