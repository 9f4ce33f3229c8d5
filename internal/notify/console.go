package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// MarketStatus is one row of the periodic status output.
type MarketStatus struct {
	Slug        string
	Phase       string
	State       string
	UpShares    float64
	UpAvgCost   float64
	DownShares  float64
	DownAvgCost float64
	Unhedged    float64
	RiskLevel   string
	OpenOrder   string
	Remaining   time.Duration
}

// Status bundles everything a status tick prints.
type Status struct {
	Time              time.Time
	Markets           []MarketStatus
	Wins              int
	Losses            int
	PairsCompleted    int
	RealizedPnL       float64
	AggregateUnhedged float64
	TotalExposure     float64
}

type Console struct {
	out   io.Writer
	table bool
}

func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter is for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

func (c *Console) Render(status Status) {
	if c.table {
		c.printFull(status)
		return
	}
	c.printCompact(status)
}

func (c *Console) printCompact(status Status) {
	now := status.Time.Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts | pairs:%d W:%d L:%d | pnl $%.2f | unhedged %.1f | exposure $%.2f",
		now, len(status.Markets), status.PairsCompleted, status.Wins, status.Losses,
		status.RealizedPnL, status.AggregateUnhedged, status.TotalExposure)

	shown := 0
	for _, m := range status.Markets {
		if shown >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s U:%.0f@%.2f D:%.0f@%.2f %s",
			shortSlug(m.Slug), m.Phase,
			m.UpShares, m.UpAvgCost, m.DownShares, m.DownAvgCost, m.RiskLevel)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printFull(status Status) {
	now := status.Time.Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] tracking %d markets\n", now, len(status.Markets))

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Phase", "State", "Up", "AvgUp", "Down", "AvgDn", "Unhedged", "Risk", "Order", "Left")

	for _, m := range status.Markets {
		table.Append(
			shortSlug(m.Slug),
			m.Phase,
			m.State,
			fmt.Sprintf("%.0f", m.UpShares),
			avgLabel(m.UpAvgCost),
			fmt.Sprintf("%.0f", m.DownShares),
			avgLabel(m.DownAvgCost),
			fmt.Sprintf("%.1f", m.Unhedged),
			m.RiskLevel,
			orderLabel(m.OpenOrder),
			fmt.Sprintf("%ds", int(m.Remaining.Seconds())),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  pairs:%d  W:%d L:%d  pnl $%.2f  unhedged %.1f  exposure $%.2f\n\n",
		status.PairsCompleted, status.Wins, status.Losses,
		status.RealizedPnL, status.AggregateUnhedged, status.TotalExposure)
}

func avgLabel(avg float64) string {
	if avg <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f", avg)
}

func orderLabel(orderID string) string {
	if orderID == "" {
		return "-"
	}
	if len(orderID) > 10 {
		return orderID[:8] + ".."
	}
	return orderID
}

func shortSlug(slug string) string {
	if len(slug) <= 28 {
		return slug
	}
	return slug[:26] + ".."
}
