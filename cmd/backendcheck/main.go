package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/park285/chess-relay-bot/internal/backend"
	appcfg "github.com/park285/chess-relay-bot/internal/config"
	"github.com/park285/chess-relay-bot/internal/irisfast"
	"github.com/spf13/cobra"
)

var checkArgs struct {
	backendURL string
	iris       bool
	timeout    time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "backendcheck",
	Short: "Check the chess backend and the chat bridge the relay depends on",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := appcfg.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if checkArgs.backendURL != "" {
			cfg.BackendBaseURL = checkArgs.backendURL
		}
		if err := checkBackend(cmd, cfg); err != nil {
			return err
		}
		if checkArgs.iris && cfg.Transport == appcfg.TransportIris {
			checkIris(cmd, cfg)
		}
		return nil
	},
}

func checkBackend(cmd *cobra.Command, cfg *appcfg.AppConfig) error {
	chess := backend.NewClient(cfg.BackendBaseURL, backend.WithTimeout(checkArgs.timeout))
	ctx, cancel := context.WithTimeout(cmd.Context(), checkArgs.timeout)
	defer cancel()
	resp, err := chess.QueryBoard(ctx)
	if err != nil {
		return fmt.Errorf("backend %s unreachable: %w", chess.BaseURL(), err)
	}
	firstLine, _, _ := strings.Cut(resp.Body, "\n")
	cmd.Printf("backend ok: status=%d first_line=%q\n", resp.StatusCode, firstLine)
	return nil
}

func checkIris(cmd *cobra.Command, cfg *appcfg.AppConfig) {
	client := irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(cfg.IrisHeaders),
		irisfast.WithTimeout(checkArgs.timeout),
	)
	ctx, cancel := context.WithTimeout(cmd.Context(), checkArgs.timeout)
	defer cancel()
	icfg, err := client.GetConfig(ctx)
	if err != nil {
		cmd.Printf("/config error: %v\n", err)
		return
	}
	cmd.Printf("/config ok: bot=%s port=%d polling=%d rate=%d endpoint=%s\n", icfg.BotName, icfg.Port, icfg.PollingSpeed, icfg.MessageRate, icfg.WebserverEndpoint)
}

func init() {
	rootCmd.Flags().StringVar(&checkArgs.backendURL, "backend", "", "Backend base URL (overrides BACKEND_BASE_URL)")
	rootCmd.Flags().BoolVar(&checkArgs.iris, "iris", true, "Also query Iris /config when the iris transport is configured")
	rootCmd.Flags().DurationVar(&checkArgs.timeout, "timeout", 5*time.Second, "Per-request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
