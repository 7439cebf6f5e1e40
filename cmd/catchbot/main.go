package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cwygoda/catchbot/internal/config"
	"github.com/cwygoda/catchbot/internal/logging"
)

// cli holds state shared by all subcommands.
type cli struct {
	configPath   string
	installYtdlp bool
	cfg          *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "catchbot",
		Short:         "Catch YouTube links from chat and download their audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Config file (default "+config.DefaultConfigPath()+")")
	config.BindFlags(flags)

	root.AddCommand(
		c.newServeCmd(),
		c.newWorkerCmd(),
		c.newSubmitCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	if err := logging.Setup(os.Stderr, "info", "console"); err != nil {
		return err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	cfg.ApplyFlags(cmd.Flags())

	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Error().Err(err).Msg("invalid logging config")
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the download worker and the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runService(true)
		},
	}
	cmd.Flags().BoolVar(&c.installYtdlp, "install-ytdlp", false, "Download a yt-dlp binary if none is installed")
	return cmd
}

func (c *cli) newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the download worker and the HTTP server without the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runService(false)
		},
	}
	cmd.Flags().BoolVar(&c.installYtdlp, "install-ytdlp", false, "Download a yt-dlp binary if none is installed")
	return cmd
}

func (c *cli) runService(withBot bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, c.cfg, withBot, c.installYtdlp)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer svc.Close()

	return svc.Run(ctx)
}
