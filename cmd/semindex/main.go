// Package main provides the semindex command line tool.
//
// Usage:
//
//	semindex [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the HTTP gateway
//	search   - Query the configured index
//	index    - Add documents and build the index
//	count    - Print the number of indexed documents
//	workflow - Run a configured workflow over input elements
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/semindex/app"
	"github.com/c360/semindex/config"
	httpgateway "github.com/c360/semindex/gateway/http"
	"github.com/c360/semindex/metric"
)

const (
	// Version is the build version
	Version = "0.1.0"

	appName = "semindex"
)

var (
	configPath string
	logLevel   string
	listenAddr string
	limit      int
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     appName,
		Short:   "Gateway in front of a mutable semantic search index",
		Version: Version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the configured index",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	search.Flags().IntVar(&limit, "limit", 10, "maximum results")

	indexCmd := &cobra.Command{
		Use:   "index <text>...",
		Short: "Add documents and build the index",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndex,
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed documents",
		RunE:  runCount,
	}

	workflowCmd := &cobra.Command{
		Use:   "workflow <name> <element>...",
		Short: "Run a configured workflow over input elements",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runWorkflow,
	}

	root.AddCommand(serve, search, indexCmd, count, workflowCmd)
	return root
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// newGateway loads settings and constructs the gateway.
func newGateway(logger *slog.Logger, metrics *metric.Registry) (*app.Application, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	opts := []app.Option{app.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, app.WithMetrics(metrics))
	}
	return app.New(settings, opts...)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	metrics := metric.NewRegistry()

	gateway, err := newGateway(logger, metrics)
	if err != nil {
		return err
	}

	server := httpgateway.NewServer(httpgateway.Config{Addr: listenAddr}, gateway, logger, metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		gateway.Close()
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	gateway, err := newGateway(logger, nil)
	if err != nil {
		return err
	}
	defer gateway.Close()

	results, err := gateway.Search(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runIndex(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	gateway, err := newGateway(logger, nil)
	if err != nil {
		return err
	}
	defer gateway.Close()

	documents := make([]any, len(args))
	for i, text := range args {
		documents[i] = text
	}

	if _, err := gateway.Add(cmd.Context(), documents); err != nil {
		return err
	}
	if err := gateway.Index(cmd.Context()); err != nil {
		return err
	}

	count, _ := gateway.Count()
	logger.Info("index built", "documents", count)
	return nil
}

func runCount(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	gateway, err := newGateway(logger, nil)
	if err != nil {
		return err
	}
	defer gateway.Close()

	count, ok := gateway.Count()
	if !ok {
		return fmt.Errorf("no index configured")
	}
	fmt.Println(count)
	return nil
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	gateway, err := newGateway(logger, nil)
	if err != nil {
		return err
	}
	defer gateway.Close()

	elements := make([]any, len(args)-1)
	for i, element := range args[1:] {
		elements[i] = element
	}

	transformed, err := gateway.Workflow(cmd.Context(), args[0], elements)
	if err != nil {
		return err
	}
	return printJSON(transformed)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
