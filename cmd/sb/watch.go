package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/switchboard/internal/ledger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/switchboard"
)

func newWatchCmd(gf *globalFlags) *cobra.Command {
	var (
		since    uint64
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream recorded messages in real-time",
		Long:  "Polls the history ledger for new messages and displays them as they arrive. Starts after the newest message unless --since is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return runWatch(cmd, a, since, cmd.Flags().Changed("since"), interval)
			})
		},
	}

	cmd.Flags().Uint64Var(&since, "since", 0, "start after this cursor")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

func runWatch(cmd *cobra.Command, a *app, since uint64, resume bool, interval time.Duration) error {
	if !a.svc.LedgerEnabled() {
		return fmt.Errorf("watch: %s", switchboard.LedgerDisabledText)
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	width := terminalWidth(out)

	cursor := since
	if !resume {
		cursor = newestCursor(ctx, a.svc)
	}
	fmt.Fprintf(out, "Watching for messages after cursor %d (Ctrl+C to stop)\n", cursor)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			resp := a.svc.MessagesSince(ctx, cursor, ledger.MaxLimit)
			if resp.IsError {
				fmt.Fprintf(out, "poll error: %s\n", resp.Text)
				continue
			}
			envs, _ := resp.Data.([]models.Envelope)
			for _, e := range envs {
				printWatchMessage(out, e, width)
				cursor = e.ID
			}
		}
	}
}

// newestCursor pages through the ledger to find the latest cursor.
func newestCursor(ctx context.Context, svc *switchboard.Service) uint64 {
	var cursor uint64
	for {
		resp := svc.MessagesSince(ctx, cursor, ledger.MaxLimit)
		envs, _ := resp.Data.([]models.Envelope)
		if resp.IsError || len(envs) == 0 {
			return cursor
		}
		cursor = envs[len(envs)-1].ID
	}
}

// terminalWidth returns the width of out when it is a terminal, else 0.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func printWatchMessage(out io.Writer, e models.Envelope, width int) {
	line := truncate(switchboard.FormatEnvelope(e), width)
	if e.Priority == models.PriorityHigh {
		line = color.New(color.Bold).Sprint(line)
	}
	fmt.Fprintln(out, line)
}

// truncate shortens s to at most n runes, adding "..." when cut. n <= 0
// disables truncation.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
