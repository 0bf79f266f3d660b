// Command llmctl sends prompts through the provider pipeline, prints the
// price table and effective configuration, and runs a Temporal worker
// serving the provider activities.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/observability"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals holds the persistent flags.
type globals struct {
	configPath string
	provider   string
	model      string
	logLevel   string

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "llmctl",
		Short:         "Call LLM backends through the retry, cache, observability and cost pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "path to YAML config file")
	pf.StringVarP(&g.provider, "provider", "p", "", "backend to use (openai, ollama)")
	pf.StringVarP(&g.model, "model", "m", "", "model name")
	pf.StringVar(&g.logLevel, "log-level", "", "override observability.log_level")

	root.AddCommand(
		newGenerateCmd(g),
		newStreamCmd(g),
		newPricesCmd(g),
		newConfigCmd(g),
		newWorkerCmd(g),
	)
	return root
}

// loadConfig reads --config (or defaults) and applies flag overrides.
func (g *globals) loadConfig() (*configuration.Config, error) {
	var cfg *configuration.Config
	if g.configPath != "" {
		var err error
		if cfg, err = configuration.Load(g.configPath); err != nil {
			return nil, err
		}
	} else {
		cfg = configuration.DefaultConfig()
		cfg.ApplyEnv()
	}

	if g.provider != "" {
		cfg.LLM.Provider = g.provider
	}
	if g.model != "" {
		cfg.LLM.Model = g.model
	}
	if g.logLevel != "" {
		cfg.Observability.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *globals) logger(cfg *configuration.Config) *slog.Logger {
	logger := observability.NewLogger(g.stderr, cfg.Observability)
	slog.SetDefault(logger)
	return logger
}
