package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FormatReport renders the report as text, json or csv.
func FormatReport(r *Report, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r)
	case "csv":
		return formatCSV(r)
	default: // text
		return formatText(r), nil
	}
}

// SaveReport writes the formatted report to path.
func SaveReport(r *Report, format, path string) error {
	output, err := FormatReport(r, format)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	if err := os.WriteFile(path, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

func formatJSON(r *Report) (string, error) {
	bts, err := json.MarshalIndent(r, "", "  ")
	return string(bts), err
}

func formatCSV(r *Report) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)

	rows := [][]string{{
		"run_id", "group", "status", "requests", "operation", "output_uri", "error", "duration_ms",
	}}
	for _, g := range r.Groups {
		rows = append(rows, []string{
			r.RunID,
			g.Group,
			string(g.Status),
			strconv.Itoa(g.Requests),
			g.Operation,
			g.OutputURI,
			g.Error,
			strconv.FormatInt(g.Duration.Milliseconds(), 10),
		})
	}

	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

func formatText(r *Report) string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("# run %s (%s)\n", r.RunID, r.Root))
	for _, g := range r.Groups {
		switch g.Status {
		case StatusSucceeded:
			output.WriteString(fmt.Sprintf("%-8s %s: %d requests -> %s (%v)\n",
				"OK", g.Group, g.Requests, g.OutputURI, g.Duration.Round(time.Second)))
		case StatusFailed:
			output.WriteString(fmt.Sprintf("%-8s %s: %d requests: %s\n", "FAILED", g.Group, g.Requests, g.Error))
		case StatusPlanned:
			output.WriteString(fmt.Sprintf("%-8s %s: %d requests -> %s\n", "PLANNED", g.Group, g.Requests, g.OutputURI))
		case StatusSkipped:
			output.WriteString(fmt.Sprintf("%-8s %s: no images\n", "SKIPPED", g.Group))
		}
	}
	output.WriteString(fmt.Sprintf("waited=%d completed=%d failed=%d skipped=%d\n",
		r.Waited, r.Completed, r.Failed, r.Skipped))
	return output.String()
}
