package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/guard"
	"github.com/rustyeddy/marginguard/internal/id"
	"github.com/rustyeddy/marginguard/internal/replay"
	"github.com/rustyeddy/marginguard/internal/status"
	"github.com/rustyeddy/marginguard/session"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded positions through the risk engine",
	Long: `Replay position ticks from a CSV file through a risk session.

Each row is time,symbol,qty,entry_price,mark_price[,balance[,available_margin]].
Rows sharing a time form one cycle. The session stops when the margin ratio
reaches risk.margin_ratio_threshold unless
risk.keep_running_in_case_of_liquidation is set.

Examples:
  marginguard replay -c marginguard.yaml --ticks data/positions.csv
  marginguard replay --ticks data/positions.csv --from 2024-03-01T00:00:00Z --org summary.org`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

var (
	replayTicksPath string
	replayFrom      string
	replayTo        string
	replayOrgPath   string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayTicksPath, "ticks", "t", "", "CSV file of position ticks (required)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "skip rows before this RFC3339 time")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "skip rows at or after this RFC3339 time")
	replayCmd.Flags().StringVar(&replayOrgPath, "org", "", "also write the session summary as an org-mode file")
	replayCmd.MarkFlagRequired("ticks")
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func runReplay(cmd *cobra.Command, args []string) error {
	from, err := parseBound(replayFrom)
	if err != nil {
		return fmt.Errorf("bad --from: %w", err)
	}
	to, err := parseBound(replayTo)
	if err != nil {
		return fmt.Errorf("bad --to: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	if j != nil {
		defer j.Close()
	}

	sc, err := cfg.Session(id.New())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := []session.Option{
		session.WithLogger(log),
		session.WithTerminator(func(r guard.Report) {
			log.Warn("liquidation: ending replay", zap.String("symbol", r.Symbol))
		}),
	}
	if j != nil {
		opts = append(opts, session.WithJournal(j))
	}
	s, err := session.New(sc, newRepository(cfg, log, cfg.Risk.Live), opts...)
	if err != nil {
		return err
	}

	feed, err := replay.Open(replayTicksPath, from, to)
	if err != nil {
		return fmt.Errorf("open ticks: %w", err)
	}
	defer feed.Close()

	start := from
	if first, ok, err := feed.Peek(); err != nil {
		return err
	} else if ok && start.IsZero() {
		start = first.Time
	}
	if err := s.Start(ctx, start); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	if cfg.Status.Addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		srv := status.New(s, log)
		go func() {
			if err := srv.ListenAndServe(srvCtx, cfg.Status.Addr); err != nil {
				log.Error("status endpoint", zap.Error(err))
			}
		}()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replaying %s as session %s\n", replayTicksPath, s.ID())
	st, runErr := replay.Run(ctx, feed, s, log)

	rep, closeErr := s.Close(context.Background())
	fmt.Fprintf(out, "\n%d cycles, %d updates\n", st.Cycles, st.Updates)
	fmt.Fprintln(out, rep.String())

	if replayOrgPath != "" {
		if err := writeOrg(replayOrgPath, rep, s.Symbols()); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Summary written to %s\n", replayOrgPath)
	}

	var lerr *guard.LiquidationError
	if errors.As(runErr, &lerr) {
		fmt.Fprintln(out, "\n"+lerr.Report.String())
	}
	return errors.Join(runErr, closeErr)
}

func writeOrg(path string, rep session.Report, symbols []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := rep.Record(strings.Join(symbols, ",")).WriteOrg(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
