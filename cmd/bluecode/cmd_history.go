package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var flagParty string

func init() {
	historyCmd.Flags().StringVar(&flagParty, "party", "", "team or name to show calls for (defaults to --team, then --name)")
	rootCmd.AddCommand(historyCmd, presenceCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print persisted call records",
	RunE: func(cmd *cobra.Command, args []string) error {
		party := flagParty
		if party == "" {
			party = flagTeam
		}
		if party == "" {
			party = flagName
		}

		d := setup()
		logs, err := d.api.History(cmd.Context(), party)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tCALL\tFROM\tTO\tTEAM\tSTATUS\tMESSAGE")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				l.CreatedAt.Local().Format("2006-01-02 15:04:05"), l.CallID, l.Sender, l.Receiver, l.ReceiverTeam, l.Status, l.Message)
		}
		return w.Flush()
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "List teams with at least one client online",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := setup()
		teams, err := d.api.Presence(cmd.Context())
		if err != nil {
			return err
		}
		if len(teams) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no teams online")
			return nil
		}
		for _, team := range teams {
			fmt.Fprintln(cmd.OutOrStdout(), team)
		}
		return nil
	},
}
