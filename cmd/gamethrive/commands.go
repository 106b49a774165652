package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/api"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// rootOptions are the persistent flags shared by every client command.
type rootOptions struct {
	tokens  tokenOptions
	timeout time.Duration
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gamethrive",
		Short: "Device-side GameThrive push client",
		Long: `gamethrive registers this device with the GameThrive service and drives
the client operations from the command line: tags, purchases, notification opens
and session updates. Configuration comes from the embedded local.yaml and
GAMETHRIVE_* environment variables.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.tokens.token, "token", "", "Push token to register (APNs hex or FCM token)")
	rootCmd.PersistentFlags().StringVar(&opts.tokens.subscription, "subscription", "", "Web Push subscription JSON file (device_type web)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "How long to wait for the service")

	rootCmd.AddCommand(newRegisterCmd(opts, logger))
	rootCmd.AddCommand(newIdsCmd(opts, logger))
	rootCmd.AddCommand(newTagsCmd(opts, logger))
	rootCmd.AddCommand(newPurchaseCmd(opts, logger))
	rootCmd.AddCommand(newOpenedCmd(opts, logger))
	rootCmd.AddCommand(newFocusCmd(opts, logger))
	rootCmd.AddCommand(newFakeServerCmd(logger))

	return rootCmd
}

// withClient builds a client from config, runs fn and closes everything afterwards.
func withClient(cmd *cobra.Command, opts *rootOptions, logger *slog.Logger, fn func(ctx context.Context, c *gamethrive.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	var closers cleanup
	defer closers.run(logger)

	store, err := newIdentityStore(ctx, cfg, &closers, logger)
	if err != nil {
		return err
	}
	tokens, err := newTokenSource(ctx, cfg, opts.tokens, logger)
	if err != nil {
		return err
	}

	client, err := gamethrive.New(cfg, tokens, store, nil, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	gamethrive.SetDefaultClient(client)

	return fn(ctx, client)
}

// await starts an operation and blocks until its callback fires or ctx ends.
func await[T any](ctx context.Context, start func(cb push.Callbacks[T])) (T, error) {
	results := make(chan push.Result[T], 1)
	start(push.Callbacks[T]{
		OnSuccess: func(v T) { results <- push.Result[T]{Value: v} },
		OnFailure: func(err error) { results <- push.Result[T]{Err: err} },
	})
	select {
	case r := <-results:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Registration ---

func newRegisterCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register this device and print the player id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				playerID, err := await(ctx, c.RegisterForPushNotifications)
				if err != nil {
					return err
				}
				token, _ := c.DeviceToken()
				return printJSON(cmd.OutOrStdout(), map[string]string{"player_id": playerID, "push_token": token})
			})
		},
	}
}

func newIdsCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "Print the persisted installation identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, logger, func(_ context.Context, c *gamethrive.Client) error {
				return printJSON(cmd.OutOrStdout(), c.Identity())
			})
		},
	}
}

func newFocusCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:       "focus <state>",
		Short:     "Report an app lifecycle transition (resume, focus)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"resume", "focus"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				_, err := await(ctx, func(cb push.Callbacks[struct{}]) {
					c.ReportFocus(args[0], cb)
				})
				return err
			})
		},
	}
}

// --- Tags ---

func newTagsCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Player tag commands",
	}
	cmd.AddCommand(newTagsSendCmd(opts, logger))
	cmd.AddCommand(newTagsDeleteCmd(opts, logger))
	cmd.AddCommand(newTagsGetCmd(opts, logger))
	return cmd
}

func newTagsSendCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "send key=value [key=value...]",
		Short: "Set one or more tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagSet := make(map[string]string, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return fmt.Errorf("tag %q is not key=value", arg)
				}
				tagSet[key] = value
			}
			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				sent, err := await(ctx, func(cb push.Callbacks[map[string]string]) {
					c.SendTags(tagSet, cb)
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sent)
			})
		},
	}
}

func newTagsDeleteCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete key [key...]",
		Short: "Remove one or more tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				_, err := await(ctx, func(cb push.Callbacks[[]string]) {
					c.DeleteTags(args, cb)
				})
				return err
			})
		},
	}
}

func newTagsGetCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the tags the service has stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				if _, ok := c.PlayerID(); !ok {
					return push.ErrNoPlayerID
				}
				tags, err := await(ctx, c.GetTags)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tags)
			})
		},
	}
}

// --- Events ---

func newPurchaseCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase <amount>",
		Short: "Report an in-app purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount %q must be a positive number", args[0])
			}
			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				_, err := await(ctx, func(cb push.Callbacks[map[string]any]) {
					c.SendPurchase(amount, cb)
				})
				return err
			})
		},
	}
}

func newOpenedCmd(opts *rootOptions, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "opened <payload.json|->",
		Short: "Report a notification open and print its message and data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}

			return withClient(cmd, opts, logger, func(ctx context.Context, c *gamethrive.Client) error {
				payload, err := await(ctx, func(cb push.Callbacks[push.NotificationPayload]) {
					c.NotificationOpenedJSON(raw, cb)
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"notification_id": payload.NotificationID,
					"message":         payload.Message,
					"additional_data": payload.AdditionalData(),
				})
			})
		},
	}
}

// --- Fake Service ---

func newFakeServerCmd(logger *slog.Logger) *cobra.Command {
	var listenAddr, restAPIKey string

	cmd := &cobra.Command{
		Use:   "fake-server",
		Short: "Run an in-memory GameThrive service for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerAPI := api.NewPlayerAPI(restAPIKey, logger)
			server := &http.Server{
				Addr:              listenAddr,
				Handler:           api.NewRouter(playerAPI),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				logger.Info("Fake service listening", "addr", listenAddr, "base", "/api/v1")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errChan <- err
				}
				close(errChan)
			}()

			select {
			case err := <-errChan:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("Shutting down fake service")
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Listen address")
	cmd.Flags().StringVar(&restAPIKey, "rest-api-key", "", "Require this key as Basic auth")

	return cmd
}
