package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cevshenbot/internal/app"
	"cevshenbot/internal/config"
	"cevshenbot/internal/rotation"
)

const dateLayout = "2006-01-02"

func previewCmd(cfgPath *string) *cobra.Command {
	var (
		date string
		days int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the rotation without sending anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigManager(*cfgPath).Load()
			if err != nil {
				return err
			}
			calc, err := app.NewCalculator(cfg)
			if err != nil {
				return err
			}
			loc, err := app.LoadLocation(cfg)
			if err != nil {
				return err
			}
			from, err := parseDate(date, loc, time.Now())
			if err != nil {
				return err
			}
			if days < 1 {
				return fmt.Errorf("--days must be >= 1, got %d", days)
			}
			renderPreview(cmd.OutOrStdout(), calc.Week(from, days))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "first day to show (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&days, "days", 1, "number of days to show")
	return cmd
}

func parseDate(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.In(loc), nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: want %s: %w", dateLayout, err)
	}
	return t, nil
}

func renderPreview(w io.Writer, polls []rotation.Poll) {
	title := color.New(color.FgCyan, color.Bold)
	name := color.New(color.FgGreen)
	for i, p := range polls {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s\n", title.Sprint(p.Title), p.Date.Weekday())
		for _, a := range p.Assignments {
			fmt.Fprintf(w, "  %s %s\n", name.Sprintf("%-10s", a.Name), a.Range)
		}
	}
}
