package main

import (
	"fmt"
	"io"
	"time"

	"sbvc/internal/scheduler"
	"sbvc/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var autoCommit bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report edits to the tracked file as they happen",
	Long: `Watches the tracked file and prints its state after every save.
With --commit every save is recorded as a new version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		w, err := watch.New(s.engine().TrackedFile(), s.cfg.Watch.Debounce, s.logger.Logger)
		if err != nil {
			return err
		}
		defer w.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Watching %s (ctrl-c to stop)\n", w.Path())

		// Saves are handled on this loop only; queued commits are collected by
		// the poller on each tick instead of blocking the loop.
		var poller scheduler.Poller
		ticker := time.NewTicker(s.cfg.Scheduler.PollInterval)
		defer ticker.Stop()

		ctx := cmd.Context()
		for {
			select {
			case <-ctx.Done():
				if n := poller.Pending(); n > 0 {
					fmt.Fprintf(out, "Waiting for %d operation(s)\n", n)
				}
				return nil

			case ev, ok := <-w.Events():
				if !ok {
					return nil
				}
				s.logger.Debug("tracked file event", zap.String("op", ev.Op.String()))
				if !autoCommit {
					reportDirty(out, s, ev)
					continue
				}
				poller.Add(s.sched.Commit(), func(res scheduler.Result) {
					reportCommit(out, res)
				})

			case <-ticker.C:
				poller.Tick()
			}
		}
	},
}

func init() {
	watchCmd.Flags().BoolVar(&autoCommit, "commit", false, "commit every save")
}

func reportDirty(out io.Writer, s *session, ev watch.Event) {
	dirty, err := s.engine().IsDirty()
	if err != nil {
		fmt.Fprintf(out, "%s %s %v\n", ev.Time.Format(dateLayout), red("!"), err)
		return
	}
	state := green("clean")
	if dirty {
		state = yellow("modified")
	}
	fmt.Fprintf(out, "%s %s\n", ev.Time.Format(dateLayout), state)
}

func reportCommit(out io.Writer, res scheduler.Result) {
	if res.Err != nil {
		fmt.Fprintf(out, "%s commit failed: %v\n", red("!"), res.Err)
		return
	}
	snap, _ := res.Snapshot()
	fmt.Fprintf(out, "%s committed %s\n", green("+"), snap.Current.Name)
}
