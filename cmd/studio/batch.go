package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/clearcut-studio/studio-server/internal/app"
	"github.com/clearcut-studio/studio-server/internal/batch"
	"github.com/clearcut-studio/studio-server/internal/client"
	"github.com/clearcut-studio/studio-server/internal/compositor"
	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every folder under a storage path",
	RunE:  runBatch,
}

func init() {
	flags := batchCmd.Flags()

	flags.String("server", "http://localhost:8787", "Studio server base URL")
	flags.String("base-path", "", "Storage path whose subfolders will be processed")
	flags.String("model", "removebg", "Background removal model")
	flags.String("api-key", "", "Model API key (falls back to stored/env keys)")
	flags.Int("width", compositor.DefaultCanvas, "Canvas width")
	flags.Int("height", compositor.DefaultCanvas, "Canvas height")
	flags.String("output-folder", "", "Output subfolder name inside each processed folder")

	viper.BindPFlag("batch.server", flags.Lookup("server"))
	viper.BindPFlag("batch.base_path", flags.Lookup("base-path"))
	viper.BindPFlag("batch.model", flags.Lookup("model"))
}

func runBatch(cmd *cobra.Command, _ []string) error {
	basePath, _ := cmd.Flags().GetString("base-path")
	if basePath == "" {
		return fmt.Errorf("--base-path is required")
	}

	serverURL, _ := cmd.Flags().GetString("server")
	model, _ := cmd.Flags().GetString("model")
	apiKey, _ := cmd.Flags().GetString("api-key")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	outputFolder, _ := cmd.Flags().GetString("output-folder")

	a, err := app.NewApp(config.GetConfig(), app.WithDBInitialization())
	if err != nil {
		return err
	}
	defer a.Close()

	storage := client.NewStorageClient(serverURL, nil, a.TokenRepository)
	runner := pipeline.NewRunner(serverURL, &http.Client{}, storage, a.RecentFolderRepository, a.Logger)

	ctx, cancel := context.WithCancel(a.Context())
	defer cancel()

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalc
		fmt.Println("\nstopping after the current file...")
		runner.Stop()
	}()

	progress := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	var folderBar, fileBar *mpb.Bar

	summary, err := runner.Start(ctx, batch.Job{
		BasePath:     basePath,
		Model:        model,
		APIKey:       apiKey,
		Width:        width,
		Height:       height,
		OutputFolder: outputFolder,
	}, func(ev batch.Event) {
		switch ev.Type {
		case batch.EventStart:
			if ev.TotalFolders > 0 {
				folderBar = progress.AddBar(int64(ev.TotalFolders),
					mpb.PrependDecorators(
						decor.Name("folders", decor.WC{W: 12, C: decor.DidentRight}),
						decor.CountersNoUnit("%d / %d"),
					),
					mpb.AppendDecorators(decor.Percentage()),
				)
			}
		case batch.EventFolderStart:
			if ev.TotalFolders > 0 {
				fileBar = nil
			}
		case batch.EventFileStart:
			if fileBar == nil && ev.TotalFiles > 0 {
				fileBar = progress.AddBar(int64(ev.TotalFiles),
					mpb.BarRemoveOnComplete(),
					mpb.PrependDecorators(
						decor.Name(ev.Folder, decor.WC{W: 24, C: decor.DidentRight}),
						decor.CountersNoUnit("%d / %d"),
					),
					mpb.AppendDecorators(decor.Percentage()),
				)
			}
		case batch.EventFileComplete, batch.EventFileError:
			if fileBar != nil {
				fileBar.Increment()
			}
		case batch.EventFolderComplete, batch.EventFolderError:
			if folderBar != nil {
				folderBar.Increment()
			}
		}
	})
	progress.Wait()

	if err != nil {
		return err
	}
	if summary == nil {
		fmt.Println("stopped")
		return nil
	}

	fmt.Printf("done: %d folders, %d files, ~$%.2f\n",
		summary.FoldersProcessed, summary.FilesProcessed, summary.CostEstimate)
	for _, e := range summary.Errors {
		fmt.Println("  error:", e)
	}
	return nil
}
