package cli

import (
	"github.com/spf13/cobra"

	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve published resources and fetch missing ones from the origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			proxy, target, err := a.resources()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Server.Listen
			}
			log.Component("cli").Info().Str("listen", listen).Bool("proxy", proxy.Enabled()).Msg("starting resource server")
			return server.Serve(cmd.Context(), listen, server.New(proxy, target, cfg.PublicPath()))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from server.listen)")
	return cmd
}
