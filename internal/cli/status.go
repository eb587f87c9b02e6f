package cli

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbp1/magicwand/internal/console"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what was last cloned and stashed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.load(); err != nil {
				return err
			}
			m, err := a.status().Load()
			if err != nil {
				return err
			}
			out := console.New(cmd.OutOrStdout())
			if len(m) == 0 {
				out.Line("Nothing cloned or stashed yet")
				return nil
			}
			for _, name := range m.Sections() {
				sec := m[name]
				out.Headline("%s (%s)", name, sec.Latest.Local().Format(time.DateTime))
				for _, k := range slices.Sorted(maps.Keys(sec.Properties)) {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", k, sec.Properties[k])
				}
			}
			return nil
		},
	}
}
