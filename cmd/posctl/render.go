package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
)

var (
	accent  = lipgloss.Color("#2563EB")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#16A34A")
	warning = lipgloss.Color("#D97706")
	danger  = lipgloss.Color("#DC2626")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle  = lipgloss.NewStyle().Foreground(dim).Width(10)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(danger)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	statusColors = map[string]lipgloss.Color{
		string(domain.PaymentStatusPaid):      success,
		string(domain.PaymentStatusPartial):   warning,
		string(domain.PaymentStatusPending):   dim,
		string(domain.InvoiceStatusCancelled): danger,
	}
)

func statusBadge(value string) string {
	color, ok := statusColors[value]
	if !ok {
		color = dim
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(strings.ToUpper(value))
}

func row(label, value string) string {
	return labelStyle.Render(label) + " " + value
}

// renderInvoice печатает карточку счёта: заголовок, позиции, суммы и платежи.
func renderInvoice(inv *billingv1.Invoice, payments []billingv1.Payment) string {
	if inv == nil {
		return dimStyle.Render("no invoice in response") + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(inv.InvoiceNumber) + "  " + statusBadge(inv.PaymentStatus))
	if inv.Status == string(domain.InvoiceStatusCancelled) && inv.PaymentStatus != inv.Status {
		b.WriteString(" " + statusBadge(inv.Status))
	}
	b.WriteString("\n")
	b.WriteString(row("id", inv.ID) + "\n")
	if inv.CustomerName != "" || inv.CustomerPhone != "" {
		b.WriteString(row("customer", strings.TrimSpace(inv.CustomerName+" "+inv.CustomerPhone)) + "\n")
	}
	b.WriteString(row("created", inv.CreatedAt.Local().Format(time.DateTime)) + "\n")

	if len(inv.Items) > 0 {
		var items strings.Builder
		items.WriteString(headerStyle.Render(fmt.Sprintf("%-20s %5s %10s %10s", "product", "qty", "price", "total")))
		for _, item := range inv.Items {
			name := item.ProductName
			if name == "" {
				name = item.ProductID
			}
			items.WriteString(fmt.Sprintf("\n%-20s %5d %10s %10s", truncate(name, 20), item.Qty, item.UnitPrice, item.LineTotal))
		}
		b.WriteString(boxStyle.Render(items.String()) + "\n")
	}

	b.WriteString(row("subtotal", inv.Subtotal) + "\n")
	b.WriteString(row("discount", inv.Discount) + "\n")
	b.WriteString(row("tax", inv.Tax) + "\n")
	b.WriteString(row("total", lipgloss.NewStyle().Bold(true).Render(inv.Total)) + "\n")
	b.WriteString(row("paid", inv.AmountPaid) + "\n")
	b.WriteString(row("due", inv.DueAmount) + "\n")

	if len(payments) > 0 {
		b.WriteString(headerStyle.Render("payments") + "\n")
		for _, p := range payments {
			b.WriteString(fmt.Sprintf("  %s  %10s  %s\n", p.CreatedAt.Local().Format(time.DateTime), p.Amount, dimStyle.Render(p.Method)))
		}
	}
	return b.String()
}

func renderInvoiceList(invoices []billingv1.Invoice) string {
	if len(invoices) == 0 {
		return dimStyle.Render("no invoices") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-22s %-19s %10s %10s %-9s", "number", "created", "total", "due", "status")) + "\n")
	for _, inv := range invoices {
		b.WriteString(fmt.Sprintf("%-22s %-19s %10s %10s %s\n",
			inv.InvoiceNumber,
			inv.CreatedAt.Local().Format(time.DateTime),
			inv.Total,
			inv.DueAmount,
			statusBadge(inv.PaymentStatus),
		))
	}
	return b.String()
}

func renderDiscrepancies(items []billingv1.StockDiscrepancy) string {
	if len(items) == 0 {
		return dimStyle.Render("no open discrepancies") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-36s %-19s %-16s %-20s %5s", "id", "occurred", "kind", "product", "qty")) + "\n")
	for _, d := range items {
		line := fmt.Sprintf("%-36s %-19s %-16s %-20s %5d",
			d.ID,
			d.OccurredAt.Local().Format(time.DateTime),
			d.Kind,
			truncate(d.ProductID, 20),
			d.Qty,
		)
		if d.Reason != "" {
			line += "  " + dimStyle.Render(d.Reason)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderTimeline(events []billingv1.TimelineEvent) string {
	if len(events) == 0 {
		return dimStyle.Render("no timeline events") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("timeline") + "\n")
	for _, event := range events {
		line := fmt.Sprintf("  %s  %s", event.OccurredAt.Local().Format(time.DateTime), event.Type)
		if event.Reason != "" {
			line += "  " + dimStyle.Render(event.Reason)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
