package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"k12-tutor/handler"
	"k12-tutor/internal/config"
	"k12-tutor/internal/platform/logger"
	"k12-tutor/internal/platform/tracing"
	"k12-tutor/internal/server"
)

const serviceName = "k12-tutor"

var (
	envFile string
	version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:           "tutor",
	Short:         "K-12 tutoring chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda API Gateway handler",
	RunE:  runLambda,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send one test prompt to the configured model",
	RunE:  runProbe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load settings from this .env file if it exists")
	rootCmd.AddCommand(serveCmd, lambdaCmd, probeCmd)
}

// bootstrap loads config, builds the logger and installs tracing.
func bootstrap(ctx context.Context) (config.Config, *logger.Logger, tracing.ShutdownFunc, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	shutdown, err := tracing.Setup(ctx, log, tracing.Options{
		Exporter:    cfg.Tracing,
		ServiceName: serviceName,
		Version:     version,
	})
	if err != nil {
		log.Sync()
		return config.Config{}, nil, nil, err
	}
	return cfg, log, shutdown, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, shutdownTracing, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build app", "error", err)
		return err
	}
	defer a.Close()

	router := server.NewRouter(server.RouterConfig{
		Endpoints:    a.endpoints,
		Log:          log,
		StaticDir:    cfg.StaticDir,
		AllowOrigins: cfg.CORSAllowOrigins,
		ServiceName:  serviceName,
	})
	log.Info("starting tutor", "version", version, "provider", cfg.ModelProvider, "session_backend", cfg.SessionBackend)
	return server.New(cfg.Port, router, log).Run(ctx)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, shutdownTracing, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build app", "error", err)
		return err
	}
	defer a.Close()

	h, err := handler.NewHandler(a.endpoints, log)
	if err != nil {
		log.Error("failed to create handler", "error", err)
		return err
	}
	lambda.Start(h.Handle)
	return nil
}
