package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"osf/pkg/jsonapi"
	pkgstrings "osf/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Output formats accepted by --output.
const (
	outputJSON  = "json"
	outputTable = "table"
)

func validateOutput(format string) error {
	switch format {
	case outputJSON, outputTable:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, outputJSON, outputTable)
	}
}

// parseQuery turns repeated key=value flags into query parameters.
func parseQuery(pairs []string) (url.Values, error) {
	query := url.Values{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q: want key=value", p)
		}
		query.Add(key, value)
	}
	return query, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// cellValue renders one column of an item for a table: id and type
// directly, strings unquoted, other attribute values as compact JSON.
func cellValue(item jsonapi.Item, column string) string {
	switch column {
	case "id":
		return item.ID
	case "type":
		return item.Type
	}
	raw, ok := item.Attr(column)
	if !ok || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return pkgstrings.TruncateCell(s, pkgstrings.DefaultCellMaxLen)
	}
	return pkgstrings.TruncateCell(string(raw), pkgstrings.DefaultCellMaxLen)
}

// renderItems prints items as a table with id, type and the given
// attribute columns.
func renderItems(w io.Writer, items []jsonapi.Item, columns []string) {
	if len(items) == 0 {
		fmt.Fprintln(w, text.FgYellow.Sprint("No items found"))
		return
	}

	cols := append([]string{"id", "type"}, columns...)
	t := newTable(w)

	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = text.FgHiCyan.Sprint(strings.ToUpper(c))
	}
	t.AppendHeader(header)

	for _, item := range items {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[i] = cellValue(item, c)
		}
		t.AppendRow(row)
	}
	t.Render()
}

// renderItem prints one flattened item as KEY/VALUE rows, keys sorted.
func renderItem(w io.Writer, item jsonapi.Item) {
	t := newTable(w)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("KEY"), text.FgHiCyan.Sprint("VALUE")})

	t.AppendRow(table.Row{text.FgHiCyan.Sprint("id"), item.ID})
	t.AppendRow(table.Row{text.FgHiCyan.Sprint("type"), item.Type})
	keys := make([]string, 0, len(item.Attributes))
	for k := range item.Attributes {
		if k == "id" || k == "type" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(k), cellValue(item, k)})
	}
	t.Render()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats a time as "in X" or "expired X ago".
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
