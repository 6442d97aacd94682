package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/rules"
	"github.com/rustyeddy/marginguard/tier"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Download or inspect risk tables and trading rules",
	Long: `Manage the rule cache.

Subcommands:
  fetch  - Download the documents of every configured route into the cache
  show   - Print the risk tiers and trading rules of one symbol

Examples:
  marginguard rules fetch -c marginguard.yaml
  marginguard rules show BTC-USDT`,
}

var rulesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download rule documents into the cache",
	Args:  cobra.NoArgs,
	RunE:  runRulesFetch,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <symbol>",
	Short: "Print the risk tiers and trading rules of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesFetchCmd)
	rulesCmd.AddCommand(rulesShowCmd)
}

func ruleKind(name string, bybitRules bool) (exchange.Kind, error) {
	if bybitRules {
		return exchange.Bybit, nil
	}
	return exchange.ParseKind(name)
}

func runRulesFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Rules.Download = true
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	kind, err := ruleKind(cfg.Exchange.Name, cfg.Exchange.TradeWithBybitRules)
	if err != nil {
		return err
	}
	repo := newRepository(cfg, log, true)
	ctx := cmd.Context()

	out := cmd.OutOrStdout()
	for _, r := range cfg.Routes {
		sym := exchange.Normalize(r.Symbol)
		if _, err := repo.Reload(ctx, kind, sym); err != nil {
			return fmt.Errorf("%s risk table: %w", sym, err)
		}
		if _, err := repo.TradingRules(ctx, kind, sym); err != nil {
			return fmt.Errorf("%s trading rules: %w", sym, err)
		}
		fmt.Fprintf(out, "✓ %s %s\n", kind, sym)
	}
	fmt.Fprintf(out, "Rules cached in %s\n", cfg.Rules.CacheDir)
	return nil
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	kind, err := ruleKind(cfg.Exchange.Name, cfg.Exchange.TradeWithBybitRules)
	if err != nil {
		return err
	}
	return showRules(cmd.Context(), cmd.OutOrStdout(), newRepository(cfg, log, false), kind, args[0])
}

func showRules(ctx context.Context, out io.Writer, repo *rules.Repository, kind exchange.Kind, symbol string) error {
	sym := exchange.Normalize(symbol)
	tbl, err := repo.Table(ctx, kind, sym)
	if err != nil && (!errors.Is(err, rules.ErrRuleParse) || tbl == nil) {
		return err
	}
	if tbl.Degraded {
		fmt.Fprintf(out, "! %s risk table is malformed, showing conservative defaults\n", sym)
	}
	src, err := tier.New(tbl, tier.Options{})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s\n", kind, sym)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	switch {
	case tbl.Ftx != nil:
		p := tbl.Ftx
		fmt.Fprintf(w, "imf factor\t%g\n", p.IMFFactor)
		fmt.Fprintf(w, "imf weight\t%g\n", p.IMFWeight)
		fmt.Fprintf(w, "mmf weight\t%g\n", p.MMFWeight)
	default:
		fmt.Fprintln(w, "tier\tfloor\tcap\tmax lev\tmaint ratio\tmaint amount")
		for _, t := range tier.Tiers(src) {
			fmt.Fprintf(w, "%d\t%.0f\t%.0f\t%g\t%g\t%g\n",
				t.Bracket, t.NotionalFloor, t.NotionalCap, t.MaxLeverage, t.MaintMarginRatio, t.MaintAmount)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	tr, err := repo.TradingRules(ctx, kind, sym)
	if err != nil && !errors.Is(err, rules.ErrRuleParse) {
		return err
	}
	fmt.Fprintf(out, "min qty %g, step %g, min notional %g, price precision %d, qty precision %d\n",
		tr.MinQty, tr.StepSize, tr.MinNotional, tr.PricePrecision, tr.QuantityPrecision)
	return nil
}
