package notifier

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatAmount renders a smallest-unit amount as a grouped decimal string,
// e.g. 6000050 -> "60,000.50".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s.%02d", sign, humanize.Comma(amount/100), amount%100)
}

// FormatEvent renders a one-line human summary of an event.
func FormatEvent(evt Event) string {
	var b strings.Builder
	b.WriteString(string(evt.Type))
	b.WriteString(" " + evt.SubjectID)
	if evt.GroupID != "" {
		b.WriteString(" group=" + evt.GroupID)
	}
	if evt.Actor != "" {
		b.WriteString(" actor=" + evt.Actor)
	}
	if evt.Amount != 0 {
		b.WriteString(" amount=" + FormatAmount(evt.Amount))
	}
	if evt.Detail != "" {
		b.WriteString(" " + evt.Detail)
	}
	b.WriteString(" at=" + evt.At.Format("2006-01-02 15:04:05"))
	return b.String()
}
