package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sakif/schoolquest/internal/client"
	"github.com/sakif/schoolquest/internal/config"
	"github.com/sakif/schoolquest/internal/legacy"
	"github.com/sakif/schoolquest/internal/missionid"
	"github.com/sakif/schoolquest/internal/server"
	"github.com/sakif/schoolquest/internal/tui"
)

func newLeaderboardCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the top students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := opts.logger(false)
			if err != nil {
				return err
			}
			defer closeLog()

			entries, err := client.New(opts.server, opts.token, client.WithLogger(logger)).Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scores yet.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{strconv.Itoa(e.Rank), e.User, strconv.Itoa(e.Total)})
			}
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(tui.Muted)).
				Headers("#", "STUDENT", "XP").
				Rows(rows...)
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <file.csv>",
		Short: "Import a CSV export of the old progress table",
		Long: `Import a CSV export of the old progress table into the store configured
by DATABASE_URL or DB_PATH. The file needs a header row with user_email,
mission_id, score, choice_label and created_at. Rows that cannot be decoded
are skipped and logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := opts.logger(false)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store, err := server.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			rep, err := legacy.Import(cmd.Context(), f, store, logger)
			logger.Info("import finished",
				slog.Int("read", rep.Read),
				slog.Int("imported", rep.Imported),
				slog.Int("skipped", rep.Skipped),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "read %d, imported %d, skipped %d\n", rep.Read, rep.Imported, rep.Skipped)
			return nil
		},
	}
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id <tag>",
		Short: "Print the mission ID derived from a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), missionid.FromString(args[0]))
			return nil
		},
	}
}
