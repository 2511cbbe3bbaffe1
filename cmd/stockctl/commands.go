package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/core/service"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Resolve shop and host the way a page load would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.boot(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			p := s.page
			out := map[string]any{
				"shop":        p.Resolution.Shop,
				"host":        p.Resolution.Host,
				"shop_source": p.Resolution.ShopSource,
				"host_source": p.Resolution.HostSource,
				"embedded":    p.Embedded,
				"redirected":  p.Redirected,
				"bridge":      p.Bridge != nil && p.Bridge.Get() != nil,
			}
			if p.CanonicalHref != "" {
				out["canonical_href"] = p.CanonicalHref
			}
			if navs := s.nav.Drain(); len(navs) > 0 {
				out["navigation"] = navs[len(navs)-1]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List variants with their stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			renderVariants(cmd.OutOrStdout(), s.page.Catalog.Snapshot())
			return nil
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Show the first 20 variants matching title or sku",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			renderVariants(cmd.OutOrStdout(), s.page.Catalog.Search(args[0], 20))
			return nil
		},
	}
}

func newSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <variant-id> <quantity>",
		Short: "Set a variant to an absolute quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid variant id %q", args[0])
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}

			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			v, err := s.page.Editor.Apply(s.ctx, id, qty)
			return reportVariant(cmd.OutOrStdout(), v, err)
		},
	}
}

func newAdjustCmd(opts *options) *cobra.Command {
	var up, down int
	var confirm bool

	cmd := &cobra.Command{
		Use:   "adjust <variant-id>",
		Short: "Move a variant up or down by an amount (max 999)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid variant id %q", args[0])
			}
			if (up > 0) == (down > 0) {
				return errors.New("exactly one of --up or --down is required")
			}
			mode, amount := service.AdjustUp, up
			if down > 0 {
				mode, amount = service.AdjustDown, down
			}

			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			v, err := s.page.Editor.Adjust(s.ctx, id, mode, amount, confirm)
			if errors.Is(err, service.ErrBelowZero) {
				return fmt.Errorf("%w (pass --confirm to allow)", err)
			}
			return reportVariant(cmd.OutOrStdout(), v, err)
		},
	}
	cmd.Flags().IntVar(&up, "up", 0, "Amount to add")
	cmd.Flags().IntVar(&down, "down", 0, "Amount to remove")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Allow the result to go below zero")
	return cmd
}

func newDashboardCmd(opts *options) *cobra.Command {
	var filter, query string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarise stock against the low-stock threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			ov := s.page.Dashboard.Overview(s.ctx, service.ParseFilter(filter), query)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "threshold %d: %d variants, %d tracked, %s, %s\n",
				ov.Threshold, ov.Stats.Total, ov.Stats.Tracked,
				warnStyle.Render(fmt.Sprintf("%d low", ov.Stats.Low)),
				errStyle.Render(fmt.Sprintf("%d out", ov.Stats.Out)),
			)
			renderVariants(w, ov.Rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, low or out")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search product, variant or sku")
	return cmd
}

func newThresholdCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold [value]",
		Short: "Show or save the low-stock threshold (0-999)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid threshold %q", args[0])
				}
				if err := s.page.Dashboard.SetThreshold(s.ctx, n); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.page.Dashboard.Threshold(s.ctx))
			return nil
		},
	}
}

func newCSVCmd(opts *options) *cobra.Command {
	csvCmd := &cobra.Command{
		Use:   "csv",
		Short: "Batch updates from sku,qty files",
	}

	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Print a sample upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), service.CSVTemplate)
			return err
		},
	}

	var dryRun bool
	applyCmd := &cobra.Command{
		Use:   "apply <file|->",
		Short: "Match rows by sku and set each variant to its qty, one row at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readUpload(cmd, args[0])
			if err != nil {
				return err
			}

			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			report := s.page.Batch.ParseWithReport(text)
			if report.Err != nil {
				return report.Err
			}
			w := cmd.OutOrStdout()
			if report.Skipped > 0 {
				fmt.Fprintf(w, "%s\n", warnStyle.Render(fmt.Sprintf("skipped %d invalid rows", report.Skipped)))
			}

			rows := report.Rows
			if !dryRun {
				rows = s.page.Batch.Apply(s.ctx, rows)
			}
			renderRows(w, rows)

			sum := service.Summarize(rows)
			fmt.Fprintf(w, "total %d, ok %d, error %d, not found %d, no change %d, pending %d\n",
				sum.Total, sum.OK, sum.Errors, sum.NotFound, sum.NoChange, sum.Pending)
			if sum.Errors > 0 {
				return fmt.Errorf("%d rows failed", sum.Errors)
			}
			return nil
		},
	}
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and match only")

	csvCmd.AddCommand(templateCmd, applyCmd)
	return csvCmd
}

// newStressCmd fires concurrent edits at one variant to check that only one
// request per row is ever in flight.
func newStressCmd(opts *options) *cobra.Command {
	var requests int

	cmd := &cobra.Command{
		Use:   "stress <variant-id>",
		Short: "Send concurrent edits to one variant and report how many were accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid variant id %q", args[0])
			}

			s, done, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			defer done()

			start, ok := s.page.Catalog.Get(id)
			if !ok {
				return service.ErrVariantNotFound
			}

			var applied, rejected, failed atomic.Int32
			var wg sync.WaitGroup
			began := time.Now()

			for i := 0; i < requests; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					_, err := s.page.Editor.Apply(s.ctx, id, start.Quantity+n+1)
					switch {
					case err == nil:
						applied.Add(1)
					case errors.Is(err, service.ErrUpdateInFlight):
						rejected.Add(1)
					default:
						failed.Add(1)
					}
				}(i)
			}
			wg.Wait()

			final, _ := s.page.Catalog.Get(id)
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "========== STRESS RESULTS ==========")
			fmt.Fprintf(w, "Start Quantity:   %d\n", start.Quantity)
			fmt.Fprintf(w, "Total Requests:   %d\n", requests)
			fmt.Fprintf(w, "Applied:          %d\n", applied.Load())
			fmt.Fprintf(w, "Rejected:         %d\n", rejected.Load())
			fmt.Fprintf(w, "Failed:           %d\n", failed.Load())
			fmt.Fprintf(w, "Final Quantity:   %d\n", final.Quantity)
			fmt.Fprintf(w, "Duration:         %v\n", time.Since(began))
			fmt.Fprintln(w, "====================================")
			return nil
		},
	}
	cmd.Flags().IntVarP(&requests, "requests", "n", 20, "Concurrent edits to send")
	return cmd
}

func readUpload(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return string(data), nil
}

func reportVariant(w io.Writer, v domain.Variant, err error) error {
	if err != nil {
		if v.ID != 0 {
			fmt.Fprintf(w, "%s %s now %d\n", errStyle.Render("failed:"), displaySKU(v), v.Quantity)
		}
		return err
	}
	fmt.Fprintf(w, "%s %s = %d\n", okStyle.Render("updated"), displaySKU(v), v.Quantity)
	return nil
}

func renderVariants(w io.Writer, variants []domain.Variant) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "PRODUCT", "VARIANT", "SKU", "QTY", "TRACKED")
	for _, v := range variants {
		tracked := "yes"
		if !v.TrackingEnabled {
			tracked = "no"
		}
		t.Row(strconv.FormatInt(v.ID, 10), v.ProductTitle, v.VariantTitle, v.SKU, strconv.Itoa(v.Quantity), tracked)
	}
	fmt.Fprintln(w, t.Render())
}

func renderRows(w io.Writer, rows []domain.CSVRow) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LINE", "SKU", "QTY", "MATCH", "STATUS")
	for _, row := range rows {
		match := "-"
		if row.Match != nil {
			match = strings.TrimSpace(row.Match.ProductTitle + " " + row.Match.VariantTitle)
		}
		t.Row(strconv.Itoa(row.Line), row.SKU, strconv.Itoa(row.RequestedQuantity), match, string(row.Status))
	}
	fmt.Fprintln(w, t.Render())
}

func displaySKU(v domain.Variant) string {
	if v.SKU != "" {
		return v.SKU
	}
	return strconv.FormatInt(v.ID, 10)
}
