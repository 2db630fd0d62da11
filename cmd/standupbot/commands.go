package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"standupbot/internal/app"
	"standupbot/internal/config"
	"standupbot/internal/schedule"
	"standupbot/internal/standup"
)

const defaultConfigPath = "./config.json"

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "standupbot",
		Short:         "Daily standup bot for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, f)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", defaultConfigPath, "path to config file (json or yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDaemon(cmd, f)
			},
		},
		newScheduleCmd(f),
		newRosterCmd(f),
	)
	return root
}

// loadConfig reads the file plus environment. A missing file is accepted
// when --config was not given.
func loadConfig(cmd *cobra.Command, f *rootFlags) (*config.Config, error) {
	m := config.NewManager(f.configPath)
	m.AllowMissing(!cmd.Flags().Changed("config"))
	return m.Load()
}

func runDaemon(cmd *cobra.Command, f *rootFlags) error {
	a, err := app.New(app.Options{
		ConfigPath:   f.configPath,
		AllowMissing: !cmd.Flags().Changed("config"),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func newScheduleCmd(f *rootFlags) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the parsed schedule and each user's next trigger times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			sc, err := cfg.Standup.Resolve()
			if err != nil {
				return err
			}
			spec, err := standup.ParseSchedule(sc.Schedule)
			if err != nil {
				return err
			}
			users, err := standup.RequireRoster(sc.TargetUsers, sc.DefaultTimezone)
			if err != nil {
				return err
			}
			printSchedule(cmd.OutOrStdout(), spec, users, time.Now(), count)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "trigger instants to print per user")
	return cmd
}

func printSchedule(w io.Writer, spec schedule.Spec, users []standup.UserConfig, now time.Time, count int) {
	fmt.Fprintf(w, "schedule: %s\n", spec)
	for _, u := range users {
		fmt.Fprintf(w, "%s (%s)\n", u.UserID, u.Timezone)
		t := now
		for i := 0; i < count; i++ {
			next, ok := schedule.Next(spec, u.Location, t)
			if !ok {
				fmt.Fprintln(w, "  no upcoming trigger")
				break
			}
			fmt.Fprintf(w, "  %s\n", next.In(u.Location).Format("Mon 2006-01-02 15:04 MST"))
			t = next
		}
	}
}

func newRosterCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Print the roster as derived from config and environment now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			sc, err := cfg.Standup.Resolve()
			if err != nil {
				return err
			}
			users, err := standup.ParseRoster(sc.TargetUsers, sc.DefaultTimezone)
			w := cmd.OutOrStdout()
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\n", u.UserID, u.Timezone)
			}
			if err == nil && len(users) == 0 {
				return &standup.ConfigurationError{Field: "standup.target_users", Err: standup.ErrEmptyRoster}
			}
			return err
		},
	}
}
