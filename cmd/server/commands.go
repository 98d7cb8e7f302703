package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codyseavey/cardprice/internal/app"
	"github.com/codyseavey/cardprice/internal/config"
	"github.com/codyseavey/cardprice/internal/logging"
	"github.com/codyseavey/cardprice/internal/models"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "cardprice",
		Short: "Card price resolution server",
		Long: `cardprice resolves scraped card references (names, set hints, variant
indexes and marketplace ids) into a single printing priced from the catalog
and the TCGplayer market.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), opts)
			},
		},
		newLookupCommand(opts),
		newPrintingsCommand(opts),
	)
	return root
}

func newLookupCommand(opts *rootOptions) *cobra.Command {
	var msg models.LookupMessage
	cmd := &cobra.Command{
		Use:   "lookup [card name]",
		Short: "Resolve one card reference and print it as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				msg.CardName = args[0]
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				card, err := a.Lookup.Lookup(ctx, msg)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), card)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&msg.ScryfallID, "scryfall-id", "", "catalog id")
	f.IntVar(&msg.TCGPlayerID, "tcgplayer-id", 0, "TCGplayer product id")
	f.StringVar(&msg.SetCode, "set", "", "set code")
	f.StringVar(&msg.CollectorNumber, "number", "", "collector number")
	f.StringVar(&msg.SetHint, "hint", "", "free-text set hint")
	f.IntVar(&msg.VariantIndex, "variant", 0, "1-based variant index")
	f.IntVar(&msg.SecondaryProductID, "product-id", 0, "marketplace product id used for pricing")
	return cmd
}

func newPrintingsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "printings <card name>",
		Short: "List every printing of a card as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				printings, err := a.Resolver.Summaries(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), printings)
			})
		},
	}
}

func loadConfig(opts *rootOptions) (config.Config, zerolog.Logger, io.Closer, error) {
	var files []string
	if opts.configFile != "" {
		files = append(files, opts.configFile)
	}
	cfg, err := config.NewLoader(config.EnvPrefix, files...).WithDotenv(".env").Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	return cfg, logger, closer, nil
}

// withApp runs fn against a started resolver and shuts it down afterwards,
// flushing caches so one-off commands warm the next run.
func withApp(ctx context.Context, opts *rootOptions, fn func(context.Context, *app.App) error) error {
	cfg, logger, closer, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.Start(runCtx)

	runErr := fn(runCtx, a)
	cancel()
	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("shutdown error")
	}
	return runErr
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger, closer, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Start(runCtx)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			cancel()
			_ = a.Close()
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the queue and flush caches after in-flight requests drain
	cancel()
	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("Server exited")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
