package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sakif/schoolquest/internal/client"
	"github.com/sakif/schoolquest/internal/heartbeat"
	"github.com/sakif/schoolquest/internal/mission"
	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/tui"
)

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play the endless runner",
		Long: `Play the endless runner. Jump with space (twice for a double jump) and
collect letters for bonus points.

With a token, every finished run is sent to the server, which replays it
and records the verified score. A heartbeat is sent while the game is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := opts.logger(true)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg, err := runner.LoadConfig(opts.runnerCfg)
			if err != nil {
				return err
			}

			c := client.New(opts.server, opts.token, client.WithLogger(logger))
			var submit tui.SubmitFunc
			if c.HasToken() {
				submit = c.SubmitRun
				stop := heartbeat.Start(cmd.Context(), opts.heartbeat, func(ctx context.Context) error {
					_, err := c.Heartbeat(ctx)
					return err
				}, logger)
				defer stop()
			} else {
				logger.Info("no token; playing offline")
			}

			m := tui.NewRunnerModel(cfg, rand.Uint64, submit)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&opts.heartbeat, "heartbeat", defaultHeartbeat, "Heartbeat interval")
	cmd.Flags().StringVar(&opts.runnerCfg, "runner-config", "", "YAML file overriding the runner balance")
	return cmd
}

func newMissionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mission <scenario-id>",
		Short: "Answer a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := opts.logger(true)
			if err != nil {
				return err
			}
			defer closeLog()

			c := client.New(opts.server, opts.token, client.WithLogger(logger))
			sc, err := c.Scenario(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("loading scenario %s: %w", args[0], err)
			}

			var save tui.ChoiceFunc
			if c.HasToken() {
				save = c.SubmitChoice
			} else {
				logger.Info("no token; answer will not be saved", slog.String("scenario", sc.ID))
			}

			m := tui.NewMissionModel(sc, mission.DefaultScoreTable(), save)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
