package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/anhducle99/bluecode/internal/apiclient"
	"github.com/anhducle99/bluecode/internal/client"
	"github.com/anhducle99/bluecode/internal/config"
	"github.com/anhducle99/bluecode/internal/incoming"
	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/transport"
	"github.com/spf13/cobra"
)

var (
	flagName   string
	flagTeam   string
	flagTeamID string
)

var rootCmd = &cobra.Command{
	Use:           "bluecode",
	Short:         "Hospital alert calls from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagName, "name", os.Getenv("BLUECODE_NAME"), "display name to register with")
	rootCmd.PersistentFlags().StringVar(&flagTeam, "team", os.Getenv("BLUECODE_TEAM"), "team name; leave empty to only place calls")
	rootCmd.PersistentFlags().StringVar(&flagTeamID, "team-id", os.Getenv("BLUECODE_TEAM_ID"), "team id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func identityFromFlags() (models.Identity, error) {
	if flagName == "" {
		return models.Identity{}, fmt.Errorf("--name is required")
	}
	return models.Identity{DisplayName: flagName, TeamID: flagTeamID, TeamName: flagTeam}, nil
}

type deps struct {
	cfg    *config.Client
	log    *slog.Logger
	api    *apiclient.Client
	client *client.Client
}

func setup() *deps {
	cfg := config.LoadClient()
	log := logger.NewConsole(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	api := apiclient.New(cfg.APIURL, cfg.Token, apiclient.WithLogger(log))
	manager := transport.NewManager(transport.Config{
		URL:   cfg.ServerURL,
		Token: cfg.Token,
		Backoff: transport.Backoff{
			InitialDelay: cfg.ReconnectMin,
			Multiplier:   2,
			MaxDelay:     cfg.ReconnectMax,
		},
	}, transport.NewWebsocketDialer(cfg.HTTPTimeout), log)

	c := client.New(client.Config{
		CallWindow:   cfg.CallWindow,
		RingWindow:   cfg.RingWindow,
		DedupeWindow: cfg.DedupeWindow,
	}, api, manager, incoming.NewBellPlayer(os.Stdout, 0), nil, log)

	return &deps{cfg: cfg, log: log, api: api, client: c}
}
