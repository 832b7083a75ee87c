package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anhducle99/bluecode/internal/incident"
	"github.com/anhducle99/bluecode/internal/incoming"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var flagAudio bool

func init() {
	listenCmd.Flags().BoolVar(&flagAudio, "audio", false, "ring the terminal bell while a call is ringing")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay online and answer incoming calls",
	Long: "Stay online and answer incoming calls.\n\n" +
		"Commands on stdin: a [callId] accepts, r [callId] rejects, f [kind] prints the feed, q quits.",
	RunE: runListen,
}

func runListen(cmd *cobra.Command, args []string) error {
	identity, err := identityFromFlags()
	if err != nil {
		return err
	}
	d := setup()
	if flagAudio {
		d.client.EnableAudio()
	}

	out := cmd.OutOrStdout()
	d.client.OnPrompt(func(p incoming.Prompt, active bool) {
		if !active {
			fmt.Fprintln(out, "prompt closed")
			return
		}
		for _, c := range p.Ringing() {
			fmt.Fprintf(out, "RINGING %s from %s: %s (answer by %s)\n", c.CallID, c.FromTeam, c.Message, c.Deadline.Format("15:04:05"))
		}
	})
	d.client.OnConnectivity(func(connected bool) {
		if connected {
			fmt.Fprintln(out, "online")
		} else {
			fmt.Fprintln(out, "offline, reconnecting")
		}
	})

	updates := make(chan incident.Incident, 16)
	d.client.Feed().OnChange(func(items []incident.Incident) {
		if len(items) == 0 {
			return
		}
		select {
		case updates <- items[0]:
		default:
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.client.Login(ctx, identity); err != nil {
		return err
	}
	defer d.client.Logout()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					lines = nil
					continue
				}
				if handleListenCommand(d, line, out) {
					stop()
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		var last string
		for {
			select {
			case <-gctx.Done():
				return nil
			case in := <-updates:
				if in.ID == last {
					continue
				}
				last = in.ID
				fmt.Fprintf(out, "feed: %s %s\n", in.Source, in.Message)
			}
		}
	})
	return g.Wait()
}

// handleListenCommand runs one stdin command and reports whether to quit.
func handleListenCommand(d *deps, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "a", "accept":
		if !d.client.Accept(arg) {
			fmt.Fprintln(out, "nothing to accept")
		}
	case "r", "reject":
		if !d.client.Reject(arg) {
			fmt.Fprintln(out, "nothing to reject")
		}
	case "f", "feed":
		showFeed(out, d.client.Feed(), arg)
	case "q", "quit":
		return true
	default:
		fmt.Fprintf(out, "unknown command %q\n", fields[0])
	}
	return false
}

// showFeed prints the whole feed, or only the incidents of kind when one is
// named.
func showFeed(out io.Writer, feed *incident.Feed, kind string) {
	if kind == "" {
		printFeed(out, feed.Incidents())
		return
	}
	k, ok := incident.ParseKind(kind)
	if !ok {
		fmt.Fprintf(out, "unknown kind %q\n", kind)
		return
	}
	printFeed(out, feed.Filter(k))
}

func printFeed(out io.Writer, items []incident.Incident) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no incidents")
		return
	}
	for _, in := range items {
		fmt.Fprintf(out, "%s  %-10s %-12s %s\n", in.Timestamp.Format("2006-01-02 15:04:05"), in.Kind, in.Source, in.Message)
	}
}
