package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vbp1/magicwand/internal/database"
	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/transport"
)

// rootOptions holds values of global flags.
type rootOptions struct {
	ConfigFile string
	Debug      bool
	Verbose    bool
	LogFile    string
	Progress   bool
}

// defaultApp wires the real runner, database and transports.
func defaultApp() *app {
	return &app{
		runner:   process.Exec{},
		resetter: database.DriverResetter{},
		dial:     transport.Dial,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "magicwand",
		Short:         "Clone, stash and restore Flow/Neos installations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log.Setup(log.Options{
				Debug:   a.opts.Debug,
				Verbose: a.opts.Verbose,
				File:    a.opts.LogFile,
				Console: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.opts.ConfigFile, "config", "c", "", "Configuration file (default: magicwand.yaml in . or $HOME/.magicwand)")
	f.BoolVar(&a.opts.Debug, "debug", false, "Enable debug trace output")
	f.BoolVar(&a.opts.Verbose, "verbose", false, "Verbose output")
	f.StringVar(&a.opts.LogFile, "log-file", "", "Also write logs to this file (rotated)")
	f.BoolVar(&a.opts.Progress, "progress", false, "Show a progress bar for database transfers")

	root.AddCommand(
		newCloneCmd(a),
		newStashCmd(a),
		newStatusCmd(a),
		newResourceCmd(a),
		newServeCmd(a),
	)
	return root
}

// Execute parses flags and runs the selected command. Credentials are masked
// in the returned error.
func Execute(ctx context.Context) error { return execute(ctx, defaultApp(), nil) }

func execute(ctx context.Context, a *app, configure func(*cobra.Command)) error {
	cmd := newRootCmd(a)
	if configure != nil {
		configure(cmd)
	}
	return a.redactError(cmd.ExecuteContext(ctx))
}
