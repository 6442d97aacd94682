package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query session journals",
	Long: `Query and display session records from a SQLite or Postgres journal.

Subcommands:
  sessions  - List recorded sessions, newest first
  session   - Print the summary of one session
  cycles    - List the cycles of one session

Examples:
  marginguard journal sessions
  marginguard journal session 01HT6Q2Y3Z9W8X7V6U5T4S3R2Q --org
  marginguard journal cycles 01HT6Q2Y3Z9W8X7V6U5T4S3R2Q`,
}

var journalSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Args:  cobra.NoArgs,
	RunE:  runJournalSessions,
}

var journalSessionCmd = &cobra.Command{
	Use:   "session <session-id>",
	Short: "Print the summary of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalSession,
}

var journalCyclesCmd = &cobra.Command{
	Use:   "cycles <session-id>",
	Short: "List the cycles of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalCycles,
}

var journalOrg bool

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalSessionsCmd)
	journalCmd.AddCommand(journalSessionCmd)
	journalCmd.AddCommand(journalCyclesCmd)

	journalSessionCmd.Flags().BoolVar(&journalOrg, "org", false, "print as an org-mode entry")
}

func openJournalFromConfig() (queryJournal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openQueryJournal(cfg.Journal)
}

func runJournalSessions(cmd *cobra.Command, args []string) error {
	j, err := openJournalFromConfig()
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tEXCHANGE\tMODE\tSTART\tROUTES\tMAX MR\tLIQUIDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.SessionID, s.Exchange, s.Mode, s.Start.Format(time.RFC3339), s.Routes, s.MaxMarginRatio, s.Liquidated)
	}
	return w.Flush()
}

func runJournalSession(cmd *cobra.Command, args []string) error {
	j, err := openJournalFromConfig()
	if err != nil {
		return err
	}
	defer j.Close()

	s, err := j.GetSession(args[0])
	if err != nil {
		return err
	}
	if journalOrg {
		return s.WriteOrg(cmd.OutOrStdout())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:          %s\n", s.SessionID)
	fmt.Fprintf(out, "Exchange:         %s (%s)\n", s.Exchange, s.Mode)
	fmt.Fprintf(out, "Routes:           %s\n", s.Routes)
	fmt.Fprintf(out, "Start:            %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(out, "End:              %s\n", s.End.Format(time.RFC3339))
	fmt.Fprintf(out, "Balance:          %.2f -> %.2f\n", s.StartBalance, s.EndBalance)
	fmt.Fprintf(out, "Max margin ratio: %s%% at %s\n", s.MaxMarginRatio, s.MaxMarginRatioTS.Format(time.RFC3339))
	fmt.Fprintf(out, "Min margin:       %s\n", s.MinMargin)
	fmt.Fprintf(out, "Max LP ratio:     %s at %s\n", s.MaxLPRatio, s.MaxLPRatioTS.Format(time.RFC3339))
	fmt.Fprintf(out, "Max total value:  %.2f\n", s.MaxTotalValue)
	if s.Liquidated {
		fmt.Fprintf(out, "Liquidated:       %s\n", s.Reason)
	}
	return nil
}

func runJournalCycles(cmd *cobra.Command, args []string) error {
	j, err := openJournalFromConfig()
	if err != nil {
		return err
	}
	defer j.Close()

	cycles, err := j.ListCycles(args[0])
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Fprintf(os.Stderr, "No cycles recorded for %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSYMBOL\tQTY\tMARK\tMM\tLIQ PRICE\tTOTAL VALUE\tMARGIN BAL\tMR %")
	for _, c := range cycles {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%.2f\t%s\t%.2f\t%.2f\t%s\n",
			c.Time.Format(time.RFC3339), c.Symbol, c.Qty, c.MarkPrice, c.MaintenanceMargin,
			c.LiquidationPrice, c.TotalValue, c.MarginBalance, c.MarginRatio)
	}
	return w.Flush()
}
