package main

import (
	"context"

	"github.com/spf13/cobra"

	"fanprompt/internal/config"
	"fanprompt/internal/logger"
	"fanprompt/internal/storage"
)

type app struct {
	configPath string
	cfg        *config.Config
	log        *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fanprompt",
		Short:         "Send one prompt to many projects and watch them run",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./fanprompt.yaml or $HOME/.config/fanprompt/fanprompt.yaml)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newJobsCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, storage.Options{
		Driver:    a.cfg.Store.Driver,
		Path:      a.cfg.Store.Path,
		RedisAddr: a.cfg.Store.RedisAddr,
		RedisKey:  a.cfg.Store.RedisKey,
	}, a.log)
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
