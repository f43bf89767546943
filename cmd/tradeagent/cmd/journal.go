package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeagent/id"
	"github.com/rustyeddy/tradeagent/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the order and fill journal",
	Long: `Query order and fill records from the SQLite journal.

Subcommands:
  orders [YYYY-MM-DD] - List orders placed on a day (default today)
  fills [YYYY-MM-DD]  - List fills on a day (default today)
  order <order-id>    - Show one order

Examples:
  tradeagent journal orders
  tradeagent journal fills 2024-01-15
  tradeagent journal order 42`,
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders [YYYY-MM-DD]",
	Short: "List orders placed on a day",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalOrders,
}

var journalFillsCmd = &cobra.Command{
	Use:   "fills [YYYY-MM-DD]",
	Short: "List fills on a day",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalFills,
}

var journalOrderCmd = &cobra.Command{
	Use:   "order <order-id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrder,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOrdersCmd)
	journalCmd.AddCommand(journalFillsCmd)
	journalCmd.AddCommand(journalOrderCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default: journal.db_path from config)")
}

func openJournalDB() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Journal.Type != "sqlite" {
			return nil, fmt.Errorf("journal queries need the sqlite journal (configured: %s)", cfg.Journal.Type)
		}
		path = cfg.Journal.DBPath
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	start, end, err := dayArg(args)
	if err != nil {
		return err
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListOrders(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tORDER\tPARENT\tSYMBOL\tACTION\tTYPE\tQTY\tLIMIT\tSTOP\tREASON")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%g\t%g\t%g\t%s\n",
			r.Time.Format(time.RFC3339), r.OrderID, r.ParentID, r.Symbol, r.Action, r.OrderType,
			r.Quantity, r.LimitPrice, r.StopPrice, r.Reason)
	}
	return w.Flush()
}

func runJournalFills(cmd *cobra.Command, args []string) error {
	start, end, err := dayArg(args)
	if err != nil {
		return err
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListFills(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tORDER\tPARENT\tSYMBOL\tKIND\tQTY\tPRICE")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%g\t%g\n",
			r.Time.Format(time.RFC3339), r.OrderID, r.ParentID, r.Symbol, r.Kind, r.Quantity, r.Price)
	}
	return w.Flush()
}

func runJournalOrder(cmd *cobra.Command, args []string) error {
	var orderID int64
	if _, err := fmt.Sscan(args[0], &orderID); err != nil {
		return fmt.Errorf("bad order id %q", args[0])
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	r, err := j.GetOrder(cmd.Context(), orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Order %d (%s)\n", r.OrderID, r.Reason)
	if started, err := id.Time(r.CycleID); err == nil {
		fmt.Fprintf(out, "  Cycle: %s (started %s)\n", r.CycleID, started.Local().Format(time.RFC3339))
	} else {
		fmt.Fprintf(out, "  Cycle: %s\n", r.CycleID)
	}
	fmt.Fprintf(out, "  Time: %s\n", r.Time.Format(time.RFC3339))
	fmt.Fprintf(out, "  %s %g %s %s\n", r.Action, r.Quantity, r.Symbol, r.OrderType)
	if r.ParentID != 0 {
		fmt.Fprintf(out, "  Parent: %d\n", r.ParentID)
	}
	if r.LimitPrice != 0 {
		fmt.Fprintf(out, "  Limit: %g\n", r.LimitPrice)
	}
	if r.StopPrice != 0 {
		fmt.Fprintf(out, "  Stop: %g\n", r.StopPrice)
	}
	return nil
}

// dayArg is the local-time day named by args[0], or today.
func dayArg(args []string) (time.Time, time.Time, error) {
	loc := time.Local
	day := time.Now().In(loc).Format("2006-01-02")
	if len(args) == 1 {
		day = args[0]
	}
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
