package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genricoloni/screend/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	startTimeout    = time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Without a subcommand the player runs.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "screend",
		Short:         "Digital signage player",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlayer(cmd.Context())
		},
	}
	root.PersistentFlags().String("addr", "", "control channel address of the running player (default from configuration)")

	root.AddCommand(
		newRunCmd(),
		newPairCmd(),
		newDisconnectCmd(),
		newStatusCmd(),
		newCacheCmd(),
		newKioskCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the player in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlayer(cmd.Context())
		},
	}
}

// runPlayer starts the application and blocks until SIGINT or SIGTERM
func runPlayer(parent context.Context) error {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, cancelStart := context.WithTimeout(ctx, startTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	return app.Stop(stopCtx)
}
