package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fanprompt/internal/backend"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference execution backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := a.cfg.Server
			if len(sc.Command) == 0 {
				return errors.New("server.command is not configured")
			}
			if addr == "" {
				addr = sc.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := backend.NewServer(backend.Config{
				Command:          sc.Command,
				Concurrency:      sc.Concurrency,
				Timeout:          sc.Timeout,
				NeedsHumanMarker: sc.NeedsHumanMarker,
			}, a.log, nil)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
