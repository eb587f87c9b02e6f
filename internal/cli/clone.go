package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vbp1/magicwand/internal/clone"
	"github.com/vbp1/magicwand/internal/config"
	"github.com/vbp1/magicwand/internal/console"
)

type cloneFlags struct {
	Yes    bool
	KeepDB bool
}

func newCloneCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone a remote installation into the local one",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the configured clone presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			w := a.console(cmd)
			return flushed(w, func() error {
				out := console.New(w)
				for _, name := range cfg.PresetNames() {
					out.Headline("%s", name)
					doc, err := yaml.Marshal(presetDocument(cfg.Presets[name]))
					if err != nil {
						return err
					}
					fmt.Fprintln(w, string(doc))
				}
				return nil
			})
		},
	}

	var f cloneFlags
	def := &cobra.Command{
		Use:   "default",
		Short: "Clone the default preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			p, err := cfg.Default()
			if err != nil {
				return err
			}
			return a.runClone(cmd, p, f)
		},
	}
	preset := &cobra.Command{
		Use:   "preset <name>",
		Short: "Clone the named preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			p, err := cfg.Preset(args[0])
			if err != nil {
				return err
			}
			return a.runClone(cmd, p, f)
		},
	}
	for _, c := range []*cobra.Command{def, preset} {
		c.Flags().BoolVar(&f.Yes, "yes", false, "Do not ask for confirmation")
		c.Flags().BoolVar(&f.KeepDB, "keep-db", false, "Import into the existing local database without recreating it")
	}

	cmd.AddCommand(list, def, preset)
	return cmd
}

func (a *app) runClone(cmd *cobra.Command, p config.Preset, f cloneFlags) error {
	local, err := a.local()
	if err != nil {
		return err
	}
	w := a.console(cmd)
	orch := clone.New(clone.Config{
		Local:            local,
		PersistentPath:   a.cfg.PersistentPath(),
		TranslationsPath: a.cfg.TranslationsPath(),
		FlowCommand:      a.cfg.RemoteFlowCommand(p),
		Progress:         a.opts.Progress,
		KeepStaging:      a.opts.Debug,
	}, clone.Deps{
		Dial:     a.dial,
		Runner:   a.runner,
		Resetter: a.resetter,
		Flow:     a.flow(w),
		Status:   a.status(),
		Secrets:  a.secrets,
		Stdin:    cmd.InOrStdin(),
		Out:      w,
	})
	return flushed(w, func() error {
		return orch.Run(cmd.Context(), clone.Options{Preset: p, Yes: f.Yes, KeepDB: f.KeepDB})
	})
}

// presetDocument is what `clone list` prints for a preset. Credentials in
// proxy headers are left out.
func presetDocument(p config.Preset) map[string]any {
	doc := map[string]any{
		"path":    p.Path,
		"context": p.Context,
	}
	if p.IsKubernetes() {
		doc["k8sNamespace"] = p.K8sNamespace
		doc["k8sPodLabelSelector"] = p.K8sPodLabelSelector
		if p.K8sContextName != "" {
			doc["k8sContextName"] = p.K8sContextName
		}
		if p.K8sContainerName != "" {
			doc["k8sContainerName"] = p.K8sContainerName
		}
	} else {
		doc["host"] = p.Host
		doc["user"] = p.User
		if p.Port != 0 {
			doc["port"] = p.Port
		}
		if p.SSHOptions != "" {
			doc["sshOptions"] = p.SSHOptions
		}
	}
	if ex := p.Clone.Database.ExcludeTableContent; len(ex) > 0 {
		doc["excludeTableContent"] = ex
	}
	if len(p.PostClone) > 0 {
		doc["postClone"] = p.PostClone
	}
	if p.Proxy != nil {
		doc["resourceProxy"] = p.Proxy.BaseURI
	}
	return doc
}
