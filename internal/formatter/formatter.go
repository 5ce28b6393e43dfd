// package formatter renders notification lists as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/shared"
)

// Format names accepted by [Render].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

// Formats lists every supported format.
var Formats = []string{FormatText, FormatCSV, FormatMarkdown, FormatJSON}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ExportToCSV writes columns ID, Read, Created, Message, Link.
func ExportToCSV(items []models.Notification) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Read", "Created", "Message", "Link"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, n := range items {
		record := []string{n.ID, strconv.FormatBool(n.Read), timestamp(n.CreatedAt), n.Message, n.Link}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a task list: checked items are read.
func ExportToMarkdown(items []models.Notification) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Notifications\n\n")
	fmt.Fprintf(&buf, "**Unread**: %d of %d\n\n", models.CountUnread(items), len(items))

	for _, n := range items {
		box := " "
		if n.Read {
			box = "x"
		}
		msg := n.Message
		if n.Link != "" {
			msg = fmt.Sprintf("[%s](%s)", n.Message, n.Link)
		}
		fmt.Fprintf(&buf, "- [%s] %s", box, msg)
		if ts := timestamp(n.CreatedAt); ts != "" {
			fmt.Fprintf(&buf, " _%s_", ts)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText renders one line per notification with an unread marker.
func ExportToText(items []models.Notification) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Notifications: %d (%d unread)\n\n", len(items), models.CountUnread(items))
	for i, n := range items {
		marker := " "
		if !n.Read {
			marker = "•"
		}
		fmt.Fprintf(&buf, "%s %d. %s [%s]\n", marker, i+1, n.Message, n.ID)
		if n.Link != "" {
			fmt.Fprintf(&buf, "     → %s\n", n.Link)
		}
	}

	return buf.Bytes(), nil
}

// ExportToJSON encodes items, indented when pretty is set.
func ExportToJSON(items []models.Notification, pretty bool) ([]byte, error) {
	if items == nil {
		items = []models.Notification{}
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(items, "", "  ")
	} else {
		data, err = json.Marshal(items)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Render dispatches on format. JSON output is indented.
func Render(items []models.Notification, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return ExportToText(items)
	case FormatCSV:
		return ExportToCSV(items)
	case FormatMarkdown, "markdown":
		return ExportToMarkdown(items)
	case FormatJSON:
		return ExportToJSON(items, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidFlag, format, strings.Join(Formats, ", "))
	}
}

// WriteExport renders items and writes them to path.
func WriteExport(items []models.Notification, format, path string) error {
	data, err := Render(items, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
