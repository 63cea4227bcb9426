package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clearcut-studio/studio-server/internal/app"
	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the studio server",
	RunE:  runApp,
}

func init() {
	flags := runCmd.Flags()

	flags.Int("port", 8787, "Port to run the server on")
	flags.String("host", "localhost", "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")
	flags.String("filesystem-type", "local", "Filesystem type: 'local' or 's3'")
	flags.String("public-dir", "", "Path where static files should be served from")

	flags.String("db-dsn", "", "Database DSN (Connection URL or Path)")
	flags.String("pulsar-url", "", "URL of the pulsar broker")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-folder", "", "S3 folder")
	flags.String("s3-vanity-url", "", "Public URL for S3 files")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	viper.BindPFlags(flags)
	bindEnvs()
}

func bindEnvs() {
	// Core settings use the STUDIO_ prefix, e.g. STUDIO_PORT.
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")
	viper.BindEnv("filesystem_type")
	viper.BindEnv("public_dir")
	viper.BindEnv("server_url")
	viper.BindEnv("seal_passphrase")

	viper.BindEnv("db.dsn")
	viper.BindEnv("pulsar.url")
	viper.BindEnv("disk.token", "STUDIO_DISK_TOKEN")

	viper.BindEnv("s3.access_key")
	viper.BindEnv("s3.secret_key")
	viper.BindEnv("s3.region_name")
	viper.BindEnv("s3.bucket_name")
	viper.BindEnv("s3.folder")
	viper.BindEnv("s3.vanity_url")
	viper.BindEnv("s3.endpoint_url")

	// External API services do not use the STUDIO_ prefix.
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
}

func runApp(_ *cobra.Command, _ []string) error {
	a, err := createNewApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.NewServer(a.Config())
	if err != nil {
		return err
	}
	srv.SetupRoutes(a)

	errc := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case <-signalc:
		fmt.Println("Stopping server...")
		return srv.Stop(a.Context())
	}
}

func createNewApp() (*app.App, error) {
	return app.NewApp(config.GetConfig(),
		app.WithMQ(),
		app.WithDBInitialization(),
		app.WithUploader(),
		app.WithDisk(),
		app.WithProviders(),
		app.WithBatchService(),
		app.WithPromptFilter(),
	)
}
