package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/colorlens/colorlens/pkg/db"
	"github.com/colorlens/colorlens/pkg/transfer"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

// renderStructured writes v as JSON or YAML.
func renderStructured(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkFormat(format)
}

func renderHistory(w io.Writer, format string, entries []transfer.HistoryEntry) error {
	if format != FormatTable {
		if entries == nil {
			entries = []transfer.HistoryEntry{}
		}
		return renderStructured(w, format, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No history entries")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tCREATED\tRESULT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, dash(e.Filename), dash(e.CreatedAt), dash(e.ResultURL))
	}
	return tw.Flush()
}

func renderAttempts(w io.Writer, format string, attempts []*db.Attempt) error {
	if format != FormatTable {
		if attempts == nil {
			attempts = []*db.Attempt{}
		}
		return renderStructured(w, format, attempts)
	}

	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tFILENAME\tSTATUS\tRESULT / ERROR")
	for _, a := range attempts {
		detail := a.ResultURL
		if a.Status == db.StatusFailed {
			detail = strings.TrimSpace(a.ErrorKind + ": " + a.ErrorMessage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.CreatedAt, a.Filename, a.Status, dash(detail))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
