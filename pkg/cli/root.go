package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/config"
)

type Config struct {
	ConfigPath   string
	EnvFile      string
	OutputWriter io.Writer
}

type runtimeState struct {
	configPath   string
	envFile      string
	debug        bool
	outputFormat string
	writer       io.Writer

	cfg *config.Config
	log *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   os.Getenv(config.ConfigPathEnv),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		envFile:    cfg.EnvFile,
		writer:     cfg.OutputWriter,
		debug:      getEnvBool("DOCMAIL_DEBUG", false),
	}

	root := &cobra.Command{
		Use:           "docmail",
		Short:         "Exchange structured document notices over a shared mailbox",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.outputFormat == "" {
				rt.outputFormat = getEnvString("DOCMAIL_OUTPUT", "")
			}
			if rt.log == nil {
				rt.log = NewLogger(rt.debug).Sugar()
			}
			// version and secret work without a service configuration
			if cmd.Name() == "version" || (cmd.Parent() != nil && cmd.Parent().Name() == "secret") {
				return nil
			}
			return rt.loadConfig()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", rt.envFile, "Dotenv file loaded before the config (default .env)")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", rt.debug, "Enable debug logging and development mode")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: json, yaml, table")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewServeCommand(),
		NewIngestCommand(),
		NewSendCommand(),
		NewSecretCommand(),
		NewVersionCommand(),
	)
	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) loadConfig() error {
	var envFiles []string
	if rt.envFile != "" {
		envFiles = append(envFiles, rt.envFile)
	}
	loaded, err := config.LoadDotEnv(envFiles...)
	if err != nil {
		return err
	}
	if loaded != "" {
		rt.log.Debugw("Loaded environment file", "path", loaded)
	}

	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ResolveClientSecret(nil); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg = &cfg
	return nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) OutputFormat(fallback string) string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	return fallback
}

// getEnvString returns the value of an environment variable, or the default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
