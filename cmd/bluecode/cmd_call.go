package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/session"
	"github.com/anhducle99/bluecode/internal/tracker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var flagMessage string

func init() {
	callCmd.Flags().StringVarP(&flagMessage, "message", "m", "", "message shown to recipients")
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call <name_team>...",
	Short: "Call one or more recipients and wait for their answers",
	Long: "Call one or more recipients and wait for their answers.\n\n" +
		"Recipients are given as name_team keys. Interrupting the command cancels the call.",
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	identity, err := identityFromFlags()
	if err != nil {
		return err
	}
	for _, key := range args {
		if _, _, err := models.ParseRecipientKey(key); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", key, err)
		}
	}

	d := setup()
	out := cmd.OutOrStdout()
	d.client.OnSession(func(s *session.Session, state tracker.State) {
		fmt.Fprintf(out, "%s  %s\n", formatRemaining(state), formatStatuses(state))
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.client.Login(ctx, identity); err != nil {
		return err
	}
	defer d.client.Logout()

	sess, err := d.client.StartCall(ctx, args, flagMessage)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "call %s placed to %d recipient(s)\n", sess.Call().CallID, len(args))

	var g errgroup.Group
	g.Go(func() error {
		select {
		case <-sess.Done():
			return nil
		case <-ctx.Done():
		}
		cancelCtx, cancel := context.WithTimeout(context.Background(), d.cfg.HTTPTimeout)
		defer cancel()
		if err := sess.Cancel(cancelCtx); err != nil && !errors.Is(err, session.ErrNotActive) {
			return err
		}
		fmt.Fprintln(out, "call cancelled")
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	counts := sess.Snapshot().Counts()
	fmt.Fprintf(out, "accepted %d, rejected %d, unreachable %d, cancelled %d\n",
		counts[models.StatusAccepted], counts[models.StatusRejected], counts[models.StatusUnreachable], counts[models.StatusCancelled])
	return nil
}

func formatRemaining(state tracker.State) string {
	if state.Expired {
		return "expired"
	}
	return fmt.Sprintf("%2ds", int(state.Remaining.Seconds()))
}

func formatStatuses(state tracker.State) string {
	keys := make([]string, 0, len(state.Statuses))
	for key := range state.Statuses {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var line string
	for _, key := range keys {
		line += fmt.Sprintf("%s=%s ", models.KeyName(key), state.Statuses[key])
	}
	return line
}
