package main

import (
	"fmt"
	"net"
	"strconv"

	"sbvc/internal/history"
	"sbvc/internal/server"
	"sbvc/internal/validation"
	"sbvc/internal/workspace"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	var newCmd = &cobra.Command{
		Use:   "new <file>",
		Short: "Start tracking a file",
		Long:  `Creates a store whose root version is the file's current content.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			path := storeFlag
			if path == "" {
				path = workspace.DefaultStorePath(args[0])
			}

			e, err := history.Create(path, args[0], engineOptions(cfg, logger))
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s in %s\n", e.TrackedFile(), e.StorePath())
			return nil
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "List all versions",
		Args:  cobra.NoArgs,
		RunE: withSnapshot(func(cmd *cobra.Command, snap history.Snapshot) error {
			printLog(cmd.OutOrStdout(), snap)
			return nil
		}),
	}

	var treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Show the version tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			root, err := s.engine().Tree()
			if err != nil {
				return err
			}
			cur, err := s.engine().Current()
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), root, cur.ID)
			return nil
		},
	}

	var showCmd = &cobra.Command{
		Use:   "show [id]",
		Short: "Print the content of a version (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			cur, err := s.engine().Current()
			if err != nil {
				return err
			}
			id := cur.ID
			if len(args) == 1 {
				if id, err = validation.ParseVersionID(args[0]); err != nil {
					return err
				}
			}

			content, err := s.engine().Reconstruct(id)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the current version and whether the file has changed",
		Args:  cobra.NoArgs,
		RunE: withSnapshot(func(cmd *cobra.Command, snap history.Snapshot) error {
			printStatus(cmd.OutOrStdout(), snap)
			return nil
		}),
	}

	var diffCmd = &cobra.Command{
		Use:   "diff",
		Short: "Show uncommitted changes against the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.engine().WorkingDiff()
			if err != nil {
				return err
			}
			if len(result.Hunks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes")
				return nil
			}
			cur, _ := s.engine().Current()
			fmt.Fprintf(cmd.OutOrStdout(), "diff --sbvc v%d working\n", cur.ID)
			printColoredDiff(cmd.OutOrStdout(), result)
			return nil
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Record the file as a new version on top of the current one",
		Args:  cobra.NoArgs,
		RunE: withMutation(func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error) {
			before, err := s.engine().Current()
			if err != nil {
				return history.Snapshot{}, err
			}
			snap, err := s.run(s.sched.Commit())
			if err == nil && snap.Current.ID == before.ID {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to commit")
			}
			return snap, err
		}),
	}

	var discard bool
	var checkoutCmd = &cobra.Command{
		Use:   "checkout <id>",
		Short: "Switch the file to another version",
		Args:  cobra.ExactArgs(1),
		RunE: withMutation(func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error) {
			id, err := validation.ParseVersionID(args[0])
			if err != nil {
				return history.Snapshot{}, err
			}
			return s.run(s.sched.Checkout(id, discard))
		}),
	}
	checkoutCmd.Flags().BoolVarP(&discard, "discard", "f", false, "discard uncommitted changes")

	var renameCmd = &cobra.Command{
		Use:   "rename <name>",
		Short: "Rename the current version",
		Args:  cobra.ExactArgs(1),
		RunE: withMutation(func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error) {
			return s.run(s.sched.Rename(args[0]))
		}),
	}

	var deleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Delete the current version and move to its base",
		Long: `Deletes the current version. Its children are attached to its base and
keep their content. The file is reset to the base version.`,
		Args: cobra.NoArgs,
		RunE: withMutation(func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error) {
			return s.run(s.sched.Delete())
		}),
	}

	var rollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "Discard uncommitted changes",
		Args:  cobra.NoArgs,
		RunE: withMutation(func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error) {
			return s.run(s.sched.Rollback())
		}),
	}

	var setFileCmd = &cobra.Command{
		Use:   "set-file <path>",
		Short: "Track another file with this history",
		Args:  cobra.ExactArgs(1),
		RunE: withMutation(func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error) {
			return s.run(s.sched.SetTrackedFile(args[0]))
		}),
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				host, port, err := splitAddr(addr)
				if err != nil {
					return err
				}
				cfg.Server.Host, cfg.Server.Port = host, port
			}

			path, err := resolveStore()
			if err != nil {
				return err
			}
			e, err := history.Open(path, engineOptions(cfg, logger))
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, e, logger)
			if err != nil {
				e.Close()
				return err
			}
			logger.Info("serving store", zap.String("path", path))
			return srv.Run(cmd.Context())
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (default from config)")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(setFileCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

func withSnapshot(fn func(cmd *cobra.Command, snap history.Snapshot) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		snap, err := s.engine().Snapshot()
		if err != nil {
			return err
		}
		return fn(cmd, snap)
	}
}

// withMutation opens a session, runs fn and prints the resulting status.
func withMutation(fn func(cmd *cobra.Command, s *session, args []string) (history.Snapshot, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		snap, err := fn(cmd, s, args)
		if closeErr := s.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), snap)
		return nil
	}
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	return host, port, nil
}
