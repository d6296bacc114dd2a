package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/freevia/locator/internal/utils"
	"github.com/freevia/locator/pkg/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
	pretty     bool

	config *utils.Config
	logger zerolog.Logger
}

func main() {
	opts := &globalOptions{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}

	root := &cobra.Command{
		Use:           "locator",
		Short:         "Resolve the user's location for Freevia",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "configs/config.yaml", "Path to the YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file with FREEVIA_* overrides")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human readable console logs")

	root.AddCommand(resolveSubcommand(opts))
	root.AddCommand(serveSubcommand(opts))

	if err := root.Execute(); err != nil {
		opts.logger.Error().Err(err).Msg("locator failed")
		os.Exit(1)
	}
}

// init loads the environment and configuration and sets up logging.
func (o *globalOptions) init() error {
	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}

	if o.pretty {
		o.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		o.logger = zerolog.New(os.Stderr)
	}
	o.logger = o.logger.Level(level).With().Timestamp().Logger()

	if err := godotenv.Load(o.envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		o.logger.Debug().Str("env_file", o.envFile).Msg("No .env file found (using environment variables)")
	}

	o.config, err = utils.LoadConfig(o.configFile, file.NewFileService())
	if err != nil {
		return err
	}
	return nil
}
