package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-llmware/internal/llm"
	"github.com/ahrav/go-llmware/internal/llm/business"
)

func newPricesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show the USD price table per million tokens",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return writePrices(g.stdout, business.PriceTableFromConfig(cfg.Pricing.Prices))
		},
	}
}

func writePrices(out io.Writer, table *business.PriceTable) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPROMPT $/1M\tCOMPLETION $/1M")
	for _, model := range table.Models() {
		e, _ := table.Lookup(model)
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\n", model, e.PromptPerMillion, e.CompletionPerMillion)
	}
	return tw.Flush()
}

func printStats(out io.Writer, s llm.Stats) {
	var b strings.Builder
	if s.Retry != nil {
		fmt.Fprintf(&b, "retry: attempts=%d retried_ok=%d exhausted=%d\n",
			s.Retry.TotalAttempts, s.Retry.SuccessfulRetries, s.Retry.Exhausted)
	}
	if s.Cache != nil {
		fmt.Fprintf(&b, "cache: hits=%d misses=%d stream_hits=%d store_errors=%d\n",
			s.Cache.Hits, s.Cache.Misses, s.Cache.StreamHits, s.Cache.StoreErrors)
	}
	if s.Cost != nil {
		fmt.Fprintf(&b, "cost: observations=%d skipped=%d total=$%.6f\n",
			s.Cost.Observations, s.Cost.Skipped, s.Cost.TotalUSD)
	}
	if s.RateLimit != nil {
		fmt.Fprintf(&b, "rate_limit: admitted=%d rejected=%d\n", s.RateLimit.Admitted, s.RateLimit.Rejected)
	}
	if s.CircuitBreaker != nil {
		fmt.Fprintf(&b, "circuit_breaker: state=%s rejected=%d\n", s.CircuitBreaker.State, s.CircuitBreaker.Rejected)
	}
	_, _ = io.WriteString(out, b.String())
}
