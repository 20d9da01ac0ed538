package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market_briefing/internal/api"
	"market_briefing/internal/config"
	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/scheduler"
	"market_briefing/internal/storage"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const VersionFile = "version.latest"

func main() {
	rootCmd := &cobra.Command{
		Use:          "briefing_bot",
		Short:        "Daily Korean market briefing from economic YouTube channels",
		Version:      readVersion(),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(weeklyCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(recsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads configuration, sets up logging and wires the app for one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Version = cmd.Root().Version
	logger.Setup(cfg.LogFile, cfg.MaxLogSizeMB, cfg.MaxLogBackups, cfg.LogLevel)
	config.LogEffective()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot listener, the scheduler and the optional HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				logger.Infof("Market Briefing %s Initialized", strings.TrimSpace(a.cfg.Version))
				if len(a.cfg.Channels) == 0 {
					logger.Warnf("YOUTUBE_CHANNELS is empty, scheduled runs will fail")
				}

				state := storage.NewStateFile(a.cfg.StateFile)
				sched := scheduler.New(a.jobs, scheduler.Slots(a.cfg), state, a.cfg.Location)

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return ignoreCanceled(a.telegram.Listen(gctx, a.bot)) })
				g.Go(func() error { return ignoreCanceled(sched.Run(gctx)) })
				g.Go(func() error { a.cleanupLoop(gctx); return nil })
				if a.cfg.HTTPAddr != "" {
					h := api.NewHandler(gctx, a.jobs, a.store, a.cfg.Location)
					g.Go(func() error { return api.Serve(gctx, a.cfg.HTTPAddr, api.NewRouter(h)) })
				}

				err := g.Wait()
				logger.Infof("⚠️ Briefing bot shutting down")
				return err
			})
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [YYYY-MM-DD]",
		Short: "Run the full briefing for today or the given date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				date := time.Now().In(a.cfg.Location)
				if len(args) == 1 {
					d, err := time.ParseInLocation("2006-01-02", args[0], a.cfg.Location)
					if err != nil {
						return fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[0])
					}
					date = d
				}
				return a.jobs.Full(ctx, date)
			})
		},
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Run the update briefing for the last three hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.jobs.Update(ctx, time.Now().In(a.cfg.Location))
			})
		},
	}
}

func weeklyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekly",
		Short: "Review the last seven days of BUY recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.jobs.Weekly(ctx)
			})
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a connectivity test message to the configured chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				msg := fmt.Sprintf("✅ 연결 테스트\n🤖 %s\n🕒 %s", delivery.EscapeMarkdown(a.engine.Name()),
					time.Now().In(a.cfg.Location).Format("2006-01-02 15:04:05 MST"))
				if err := a.channel.SendMessage(ctx, msg); err != nil {
					return fmt.Errorf("send test message: %w", err)
				}
				fmt.Println("Test message sent.")
				return nil
			})
		},
	}
}

func recsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recs",
		Short: "List recent stored recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			action, _ := cmd.Flags().GetString("action")
			if days < 1 {
				return fmt.Errorf("--days must be positive")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				to := storage.DateOnly(time.Now().In(a.cfg.Location)).AddDate(0, 0, 1)
				recs, err := a.store.Query(ctx, storage.Query{
					From:   to.AddDate(0, 0, -days),
					To:     to,
					Action: strings.ToUpper(action),
					Order:  storage.NewestFirst,
				})
				if err != nil {
					return err
				}
				fmt.Println(delivery.RenderRecommendations(recs, days))
				return nil
			})
		},
	}
	cmd.Flags().IntP("days", "d", 7, "Days to look back")
	cmd.Flags().StringP("action", "a", "", "Filter by action (BUY, SELL, HOLD, WATCH)")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readVersion() string {
	version, err := os.ReadFile(VersionFile)
	if err != nil {
		return "v0.0.0-dev"
	}
	return strings.TrimSpace(string(version))
}
