package cli

import (
	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/server"
)

func createServeCmd(opts *options) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only deployment resolver",
		Long: `Serve the registry over HTTP so other tools can resolve deployments by
chain and name, or by address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			return server.New(a.cfg, svc, a.logger).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")

	return cmd
}
