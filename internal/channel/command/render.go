// ABOUTME: Output rendering for the command channel
// ABOUTME: The same result structure as text lines, a colored table, or JSON

package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/2389/nexus-gateway/internal/apperr"
)

const (
	renderText  = "text"
	renderTable = "table"
	renderJSON  = "json"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed, color.Bold)
)

// renderResult serializes a successful result in the requested mode.
func renderResult(mode string, result map[string]any, requestID string) ([]byte, string) {
	switch mode {
	case renderJSON:
		body, err := json.MarshalIndent(map[string]any{
			"success":    true,
			"data":       result,
			"request_id": requestID,
		}, "", "  ")
		if err != nil {
			return []byte(`{"success":false}`), "application/json"
		}
		return append(body, '\n'), "application/json"
	case renderTable:
		return renderTableBody(result), "text/plain; charset=utf-8"
	default:
		return renderTextBody(result), "text/plain; charset=utf-8"
	}
}

// renderError serializes a failure: kind, message and the correlation
// ID, nothing else.
func renderError(mode string, appErr *apperr.Error, requestID string) ([]byte, string) {
	if mode == renderJSON {
		body, err := json.MarshalIndent(map[string]any{
			"success":    false,
			"error":      map[string]string{"kind": string(appErr.Kind), "message": appErr.Message},
			"request_id": requestID,
		}, "", "  ")
		if err != nil {
			return []byte(`{"success":false}`), "application/json"
		}
		return append(body, '\n'), "application/json"
	}

	var buf bytes.Buffer
	errorColor.Fprintf(&buf, "error:")
	fmt.Fprintf(&buf, " %s (%s)\n", appErr.Message, appErr.Kind)
	fmt.Fprintf(&buf, "request_id: %s\n", requestID)
	return buf.Bytes(), "text/plain; charset=utf-8"
}

// renderTextBody writes "key: value" lines in sorted key order. Nested
// maps and lists fall back to compact JSON.
func renderTextBody(result map[string]any) []byte {
	var buf bytes.Buffer
	for _, key := range sortedKeys(result) {
		fmt.Fprintf(&buf, "%s: %s\n", key, scalar(result[key]))
	}
	return buf.Bytes()
}

// renderTableBody writes one two-column table of the result, or a
// multi-column table when the result is a single list of row maps.
func renderTableBody(result map[string]any) []byte {
	if rows, ok := singleRowList(result); ok {
		return renderRows(rows)
	}

	var buf bytes.Buffer
	headerColor.Fprintf(&buf, "%-20s %s\n", "FIELD", "VALUE")
	for _, key := range sortedKeys(result) {
		fmt.Fprintf(&buf, "%-20s %s\n", key, scalar(result[key]))
	}
	return buf.Bytes()
}

func renderRows(rows []map[string]any) []byte {
	var buf bytes.Buffer
	if len(rows) == 0 {
		fmt.Fprintln(&buf, "(none)")
		return buf.Bytes()
	}

	cols := sortedKeys(rows[0])
	for _, col := range cols {
		headerColor.Fprintf(&buf, "%-20s ", col)
	}
	fmt.Fprintln(&buf)
	for _, row := range rows {
		for _, col := range cols {
			fmt.Fprintf(&buf, "%-20s ", scalar(row[col]))
		}
		fmt.Fprintln(&buf)
	}
	return buf.Bytes()
}

// singleRowList detects the {"workflows": [...]} shape where the result
// is one key holding a list of homogeneous row maps.
func singleRowList(result map[string]any) ([]map[string]any, bool) {
	if len(result) != 1 {
		return nil, false
	}
	for _, v := range result {
		list, ok := v.([]map[string]any)
		if ok {
			return list, true
		}
	}
	return nil, false
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case map[string]any, []any, []map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
