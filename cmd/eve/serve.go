package main

import (
	"github.com/spf13/cobra"

	"github.com/andrew/eve-companion/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation over HTTP",
	Long: `Starts the JSON API used by browser front ends. The same conversation,
memory and settings are shared with the terminal chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := server.New(a.svc, server.Config{
			Addr:        addr,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, logger.Named("server"))
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}
