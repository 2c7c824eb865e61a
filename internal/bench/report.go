package bench

import (
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const notAvailable = "N/A"

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatNumber renders v with en-US thousands separators and at most two
// fraction digits.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notAvailable
	}
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// formatFixed renders v with thousands separators and exactly decimals fraction digits.
func formatFixed(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notAvailable
	}
	return printer.Sprint(number.Decimal(v,
		number.MinFractionDigits(decimals), number.MaxFractionDigits(decimals)))
}

// FormatTime renders a duration in seconds as milliseconds with two decimals.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return notAvailable
	}
	return fmt.Sprintf("%.2f ms", seconds*1000)
}

// Fastest returns the names of the successful results that are statistically
// indistinguishable from the one with the highest ops/sec: their mean times
// lie within the sum of both margins of error.
func Fastest(results []*Result) []string {
	var best *Result
	for _, r := range results {
		if !r.Failed() && r.Hz > 0 && (best == nil || r.Hz > best.Hz) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	var names []string
	for _, r := range results {
		if r.Failed() || r.Hz <= 0 {
			continue
		}
		if r == best || math.Abs(r.Stats.Mean-best.Stats.Mean) <= r.Stats.MOE+best.Stats.MOE {
			names = append(names, r.Name)
		}
	}
	return names
}

// WriteFastest writes the "Fastest is" line.
func WriteFastest(w io.Writer, results []*Result) error {
	_, err := fmt.Fprintf(w, "\nFastest is %s\n", strings.Join(Fastest(results), ","))
	return err
}

// WriteTable writes the detailed results table in declaration order. Failed
// operations show N/A in every numeric column.
func WriteTable(w io.Writer, results []*Result) error {
	var b strings.Builder
	b.WriteString("\nDetailed Benchmark Results:\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "%-40s%15s%15s%15s\n", "Test Name", "Ops/sec", "Mean Time", "Std Dev")
	b.WriteString(strings.Repeat("-", 80) + "\n")

	for _, r := range results {
		ops, mean, dev := notAvailable, notAvailable, notAvailable
		if !r.Failed() && r.Samples() > 0 {
			ops = FormatNumber(r.Hz)
			mean = FormatTime(r.Stats.Mean)
			dev = FormatTime(r.Stats.Deviation)
		}
		fmt.Fprintf(&b, "%-40s%15s%15s%15s\n", r.Name, ops, mean, dev)
	}
	b.WriteString(strings.Repeat("=", 80) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteReport writes the fastest line followed by the table.
func WriteReport(w io.Writer, results []*Result) error {
	if err := WriteFastest(w, results); err != nil {
		return err
	}
	return WriteTable(w, results)
}
