package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unsubscribe-agent/internal/bootstrap"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/history"
	"unsubscribe-agent/internal/usecase"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const stopTimeout = 30 * time.Second

type batchTarget struct {
	ID             string `json:"id"`
	UnsubscribeURL string `json:"unsubscribe_url"`
}

func newRunCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Unsubscribe from a single page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(cmd.Context(), cmd.OutOrStdout(), email, []entity.EmailTarget{{UnsubscribeURL: args[0]}})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "subscriber email address (defaults to USER_EMAIL)")

	return cmd
}

func newBatchCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "batch <targets.json>",
		Short: "Unsubscribe a list of emails read from a JSON file",
		Long: `The file holds an array of objects with an "id" and an "unsubscribe_url".
An entry without a URL is reported as having no unsubscribe link.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := readTargets(args[0])
			if err != nil {
				return err
			}

			return runTargets(cmd.Context(), cmd.OutOrStdout(), email, targets)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "subscriber email address (defaults to USER_EMAIL)")

	return cmd
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive console",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := bootstrap.NewConsoleApp()
			app.Run()

			return app.Err()
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent unsubscribe attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}

			store, err := history.NewStore(cfg.HistoryConfig.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			total, succeeded, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			for _, r := range records {
				fmt.Fprintf(out, "%s  %-6s  %-28s  %s  %s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), status(r.Success), r.Strategy, r.TargetURL, r.Reason)
			}

			fmt.Fprintf(out, "\n%d attempts, %d succeeded\n", total, succeeded)

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of attempts to show")

	return cmd
}

func readTargets(path string) ([]entity.EmailTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}

	var raw []batchTarget
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}

	targets := make([]entity.EmailTarget, len(raw))
	for i, t := range raw {
		targets[i] = entity.EmailTarget{ID: t.ID, UnsubscribeURL: t.UnsubscribeURL}
	}

	return targets, nil
}

func runTargets(ctx context.Context, out io.Writer, email string, targets []entity.EmailTarget) (err error) {
	var (
		svc *usecase.Service
		cfg *config.Config
	)

	app := bootstrap.NewApp(fx.Populate(&svc, &cfg))
	if err := app.Err(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		err = errors.Join(err, app.Stop(stopCtx))
	}()

	if email == "" {
		email = cfg.AppConfig.UserEmail
	}

	results, err := svc.EmailActions.Unsubscribe(ctx, email, targets)
	if err != nil {
		return err
	}

	failed := 0

	for i, r := range results {
		label := r.ID
		if label == "" {
			label = targets[i].UnsubscribeURL
		}

		fmt.Fprintf(out, "%-6s  %s  %s\n", status(r.Success), label, r.Reason)

		if !r.Success {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d unsubscribes failed", failed, len(results))
	}

	return nil
}

func status(ok bool) string {
	if ok {
		return "OK"
	}

	return "FAILED"
}
