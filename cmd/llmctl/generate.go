package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-llmware/internal/llm"
	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

type callFlags struct {
	maxTokens   int
	temperature float64
	showStats   bool
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "completion token limit, 0 for backend default")
	cmd.Flags().Float64Var(&f.temperature, "temperature", -1, "sampling temperature, negative for configured default")
	cmd.Flags().BoolVar(&f.showStats, "stats", false, "print pipeline counters to stderr afterwards")
}

func (f *callFlags) callConfig(cfg *configuration.Config) *transport.Config {
	cc := llm.CallConfig(cfg)
	if f.maxTokens > 0 {
		cc.MaxTokens = f.maxTokens
	}
	if f.temperature >= 0 {
		t := f.temperature
		cc.Temperature = &t
	}
	return cc
}

func newGenerateCmd(g *globals) *cobra.Command {
	var flags callFlags
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Send a prompt and print the full completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withPipeline(cmd.Context(), flags.showStats, func(ctx context.Context, p *llm.Pipeline, cfg *configuration.Config) error {
				resp, err := p.Generate(ctx, strings.Join(args, " "), flags.callConfig(cfg))
				if err != nil {
					return err
				}
				fmt.Fprintln(g.stdout, resp.Text)
				if resp.Usage != nil {
					fmt.Fprintf(g.stderr, "tokens: prompt=%d completion=%d total=%d\n",
						resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newStreamCmd(g *globals) *cobra.Command {
	var flags callFlags
	cmd := &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Send a prompt and print fragments as they arrive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withPipeline(cmd.Context(), flags.showStats, func(ctx context.Context, p *llm.Pipeline, cfg *configuration.Config) error {
				stream, err := p.Stream(ctx, strings.Join(args, " "), flags.callConfig(cfg))
				if err != nil {
					return err
				}
				defer func() { _ = stream.Close() }()

				for {
					frag, err := stream.Recv()
					if errors.Is(err, io.EOF) {
						fmt.Fprintln(g.stdout)
						return nil
					}
					if err != nil {
						fmt.Fprintln(g.stdout)
						return err
					}
					fmt.Fprint(g.stdout, frag)
				}
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// withPipeline builds the pipeline, runs fn under a signal-aware context and
// closes the pipeline afterwards.
func (g *globals) withPipeline(
	parent context.Context,
	showStats bool,
	fn func(context.Context, *llm.Pipeline, *configuration.Config) error,
) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := llm.NewProvider(ctx, cfg, llm.WithLogger(g.logger(cfg)))
	if err != nil {
		return err
	}
	runErr := fn(ctx, p, cfg)
	if showStats {
		printStats(g.stderr, p.Stats())
	}
	return errors.Join(runErr, p.Close(context.WithoutCancel(ctx)))
}
