package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ryanuber/columnize"
	"github.com/tidwall/gjson"
)

// Output formats.
const (
	FormatTable   = "table"
	FormatJSON    = "json"
	FormatCompact = "compact"
)

const messageWidth = 60

func validFormat(f string) bool {
	switch f {
	case FormatTable, FormatJSON, FormatCompact:
		return true
	}
	return false
}

// printJSON pretty prints the raw response.
func printJSON(w io.Writer, r gjson.Result) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(r.Raw), "", "  "); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}

// field returns the first non-empty value among keys. REST records and
// condensed tool lines name service and message differently.
func field(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}

func clock(ts string, layout string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(layout)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// printLogs renders log records in the given order.
func printLogs(w io.Writer, logs []gjson.Result, format string) error {
	switch format {
	case FormatCompact:
		for _, l := range logs {
			fmt.Fprintf(w, "%s [%s] %s\n",
				clock(l.Get("timestamp").String(), time.TimeOnly),
				l.Get("severity").String(),
				field(l, "body", "message"))
		}
		return nil
	}

	rows := []string{"TIMESTAMP|SEVERITY|SERVICE|MESSAGE"}
	for _, l := range logs {
		service := field(l, "service_name", "service")
		if service == "" {
			service = "-"
		}
		rows = append(rows, strings.Join([]string{
			clock(l.Get("timestamp").String(), time.DateTime),
			l.Get("severity").String(),
			service,
			strings.ReplaceAll(truncate(field(l, "body", "message"), messageWidth), "|", "/"),
		}, "|"))
	}
	_, err := fmt.Fprintln(w, columnize.SimpleFormat(rows))
	return err
}

func printMetricNames(w io.Writer, names gjson.Result) {
	list := names.Array()
	fmt.Fprintf(w, "Available metrics (%d):\n\n", len(list))
	for _, n := range list {
		fmt.Fprintf(w, "  %s\n", n.String())
	}
}

func printSeries(w io.Writer, name, aggregation string, data gjson.Result, format string) error {
	if format == FormatCompact {
		for _, p := range data.Array() {
			fmt.Fprintf(w, "%s %.4f\n", clock(p.Get("timestamp").String(), time.TimeOnly), p.Get("value").Float())
		}
		return nil
	}

	fmt.Fprintf(w, "Metric: %s (%s)\n", name, aggregation)
	rows := []string{"TIMESTAMP|VALUE"}
	for _, p := range data.Array() {
		rows = append(rows, fmt.Sprintf("%s|%.4f", clock(p.Get("timestamp").String(), time.DateTime), p.Get("value").Float()))
	}
	_, err := fmt.Fprintln(w, columnize.SimpleFormat(rows))
	return err
}

func printErrorSummary(w io.Writer, summary gjson.Result, hours int) {
	patterns := summary.Get("top_patterns").Array()
	fmt.Fprintf(w, "%s errors in the last %d hours, top %d patterns:\n\n",
		humanize.Comma(summary.Get("total_errors").Int()), hours, len(patterns))
	for i, p := range patterns {
		fmt.Fprintf(w, "%d. [%sx] %s\n", i+1, humanize.Comma(p.Get("count").Int()), p.Get("pattern").String())
	}
}

func printStatus(w io.Writer, status gjson.Result) error {
	fmt.Fprintln(w, "Archives System Status")
	fmt.Fprintln(w, "======================")
	fmt.Fprintln(w)

	rows := []string{
		"Status:|" + status.Get("status").String(),
		"Version:|" + status.Get("version").String(),
		fmt.Sprintf("Logs:|%s entries (%s)", humanize.Comma(status.Get("log_count").Int()), humanize.IBytes(status.Get("log_bytes").Uint())),
		fmt.Sprintf("Metrics:|%s entries (%s)", humanize.Comma(status.Get("metric_count").Int()), humanize.IBytes(status.Get("metric_bytes").Uint())),
		fmt.Sprintf("Pool:|%d/%d connections in use, %d acquire timeouts",
			status.Get("pool.in_use").Int(), status.Get("pool.max_connections").Int(), status.Get("pool.acquire_timeouts").Int()),
		fmt.Sprintf("Retention:|logs %d days, metrics %d days",
			status.Get("retention.logs_days").Int(), status.Get("retention.metrics_days").Int()),
	}
	_, err := fmt.Fprintln(w, columnize.SimpleFormat(rows))
	return err
}
