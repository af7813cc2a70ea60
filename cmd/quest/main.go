// Package main is the SchoolQuest terminal client.
//
// COMMANDS:
//
//	quest run                 play the runner; scores are verified by the server
//	quest mission <id>        answer one scenario
//	quest leaderboard         print the top students
//	quest import-legacy <csv> convert an export of the old progress table
//	quest id <tag>            print the mission ID a tag hashes to
//
// run and mission need a token (see --token). Everything else works
// anonymously; import-legacy talks to the database directly using the same
// environment as the server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServer    = "http://localhost:8080"
	defaultHeartbeat = 60 * time.Second
)

type options struct {
	server    string
	token     string
	logFile   string
	verbose   bool
	heartbeat time.Duration
	runnerCfg string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "quest",
		Short: "SchoolQuest in the terminal",
		Long: `quest plays the SchoolQuest mini-games in a terminal and talks to a
SchoolQuest server for scores and the leaderboard.

Sign in on the website, open /api/token and export the value as QUEST_TOKEN
to save progress.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("QUEST_SERVER", defaultServer), "Server base URL (or set QUEST_SERVER)")
	flags.StringVar(&opts.token, "token", os.Getenv("QUEST_TOKEN"), "Bearer token (or set QUEST_TOKEN)")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to this file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(opts),
		newMissionCmd(opts),
		newLeaderboardCmd(opts),
		newImportCmd(opts),
		newIDCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// logger writes to --log-file when set. Without it, interactive commands
// log nothing so the screen is left to the UI; the rest log to stderr.
func (o *options) logger(interactive bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	switch {
	case o.logFile != "":
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, hopts)), func() { f.Close() }, nil
	case interactive:
		return slog.New(slog.DiscardHandler), func() {}, nil
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, hopts)), func() {}, nil
	}
}
