package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vbp1/magicwand/internal/console"
	"github.com/vbp1/magicwand/internal/stash"
)

// withStash builds the stash store and runs fn, flushing console output afterwards.
func (a *app) withStash(cmd *cobra.Command, fn func(*stash.Store) error) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}
	local, err := a.local()
	if err != nil {
		return err
	}
	w := a.console(cmd)
	s := stash.New(stash.Config{
		Root:           cfg.StashPath(),
		PersistentPath: cfg.PersistentPath(),
		Local:          local,
		MinFreeBytes:   cfg.Stash.MinFreeBytes,
	}, stash.Deps{
		Runner:   a.runner,
		Resetter: a.resetter,
		Flow:     a.flow(w),
		Status:   a.status(),
		Secrets:  a.secrets,
		Stdin:    cmd.InOrStdin(),
		Out:      w,
	})
	return flushed(w, func() error { return fn(s) })
}

func newStashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stash",
		Short: "Save and restore snapshots of the local database and persistent files",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Stash the current local state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStash(cmd, func(s *stash.Store) error {
				return s.Create(cmd.Context(), args[0])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stash entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStash(cmd, func(s *stash.Store) error {
				entries, err := s.List()
				if err != nil {
					return err
				}
				out := console.New(cmd.OutOrStdout())
				out.Headline("Stash entries")
				if len(entries) == 0 {
					out.Line("No stash entries found")
					return nil
				}
				return writeEntries(cmd, entries)
			})
		},
	}

	var restoreFlags cloneFlags
	restore := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore a stash entry into the local installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStash(cmd, func(s *stash.Store) error {
				return s.Restore(cmd.Context(), args[0], stash.Options{Yes: restoreFlags.Yes, KeepDB: restoreFlags.KeepDB})
			})
		},
	}
	restore.Flags().BoolVar(&restoreFlags.Yes, "yes", false, "Do not ask for confirmation")
	restore.Flags().BoolVar(&restoreFlags.KeepDB, "keep-db", false, "Import into the existing local database without recreating it")

	var removeYes bool
	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a stash entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStash(cmd, func(s *stash.Store) error {
				return s.Remove(args[0], removeYes)
			})
		},
	}
	remove.Flags().BoolVar(&removeYes, "yes", false, "Do not ask for confirmation")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stash entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStash(cmd, func(s *stash.Store) error { return s.Clear() })
		},
	}

	cmd.AddCommand(create, list, restore, remove, clearCmd)
	return cmd
}

func writeEntries(cmd *cobra.Command, entries []stash.Entry) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRESET\tCLONED\tSTASHED\t")
	for _, e := range entries {
		preset, cloned, stashed := e.Fields()
		note := ""
		if e.Err != nil {
			note = "(" + e.Err.Error() + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, preset, cloned, stashed, note)
	}
	return tw.Flush()
}
