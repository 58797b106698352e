// Package output renders harvest results for review and reads them
// back. Results go to a terminal table or a CSV file; a reviewed CSV
// can be re-loaded for the append and upload flows.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/crowdin/context-harvester/aicontext"
	"github.com/crowdin/context-harvester/crowdin"
	"github.com/crowdin/context-harvester/harvest"
)

// Error wraps a sink or load failure with the operation that caused it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("output %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Rows
// ---------------------------------------------------------------------------

// Row is one reviewed result line, round-trippable through CSV.
type Row struct {
	ID        int64
	Key       string
	Text      string
	Context   string
	AIContext string
}

// Rows projects harvest records into review rows. Fragments are joined
// with newlines; strings without results keep an empty AIContext.
func Rows(records []*harvest.Record) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			ID:        r.Str.ID,
			Key:       r.Str.Identifier,
			Text:      r.Str.Text,
			Context:   r.Str.Context,
			AIContext: strings.Join(r.Extracted, "\n"),
		}
	}
	return rows
}

// Updates converts reviewed rows back into batch patch operations,
// skipping rows with nothing extracted. With all set, the AI column is
// written verbatim as the new context; otherwise it is merged into the
// existing context with the delimited-section protocol.
func Updates(rows []Row, all bool) []crowdin.ContextUpdate {
	var updates []crowdin.ContextUpdate
	for _, row := range rows {
		if strings.TrimSpace(row.AIContext) == "" {
			continue
		}
		value := row.AIContext
		if !all {
			value = aicontext.Append(row.Context, strings.Split(row.AIContext, "\n"))
		}
		updates = append(updates, crowdin.ContextUpdate{ID: row.ID, Context: value})
	}
	return updates
}

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

// lastColumn names the AI column by mode: extraction results or issue
// reports.
func lastColumn(mode harvest.Mode) string {
	if mode == harvest.ModeCheck {
		return "errors"
	}
	return "aiContext"
}

// WriteCSV renders rows with a header line.
func WriteCSV(w io.Writer, rows []Row, mode harvest.Mode) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "key", "text", "context", lastColumn(mode)}); err != nil {
		return &Error{Op: "write csv", Err: err}
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Key,
			row.Text,
			row.Context,
			row.AIContext,
		}
		if err := cw.Write(record); err != nil {
			return &Error{Op: "write csv", Err: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &Error{Op: "write csv", Err: err}
	}
	return nil
}

// SaveCSV writes rows to path, creating or truncating it.
func SaveCSV(path string, rows []Row, mode harvest.Mode) error {
	f, err := os.Create(path)
	if err != nil {
		return &Error{Op: "create " + path, Err: err}
	}
	if err := WriteCSV(f, rows, mode); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "close " + path, Err: err}
	}
	return nil
}

// LoadCSV reads a previously written CSV back into rows. The header
// line is required; column order must match what WriteCSV produces.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open " + path, Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 5
	records, err := cr.ReadAll()
	if err != nil {
		return nil, &Error{Op: "read " + path, Err: err}
	}
	if len(records) == 0 {
		return nil, &Error{Op: "read " + path, Err: fmt.Errorf("missing header line")}
	}
	if records[0][0] != "id" {
		return nil, &Error{Op: "read " + path, Err: fmt.Errorf("unexpected header %v", records[0])}
	}

	var rows []Row
	for i, record := range records[1:] {
		id, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, &Error{Op: "read " + path, Err: fmt.Errorf("line %d: invalid id %q", i+2, record[0])}
		}
		rows = append(rows, Row{
			ID:        id,
			Key:       record[1],
			Text:      record[2],
			Context:   record[3],
			AIContext: record[4],
		})
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Terminal table
// ---------------------------------------------------------------------------

// maxCell keeps table cells readable on a terminal.
const maxCell = 60

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " | ")
	if len(s) <= maxCell {
		return s
	}
	return s[:maxCell-3] + "..."
}

// WriteTable renders rows as an aligned table. Only rows with results
// are listed; a summary line reports the totals.
func WriteTable(w io.Writer, rows []Row, mode harvest.Mode) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tKEY\tTEXT\t%s\n", strings.ToUpper(lastColumn(mode)))

	shown := 0
	for _, row := range rows {
		if strings.TrimSpace(row.AIContext) == "" {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.ID, clip(row.Key), clip(row.Text), clip(row.AIContext))
		shown++
	}
	if err := tw.Flush(); err != nil {
		return &Error{Op: "write table", Err: err}
	}
	fmt.Fprintf(w, "\n%d of %d strings got results\n", shown, len(rows))
	return nil
}

// MergeAppend seeds records with the AI column of a previous run so a
// new run adds to it instead of starting over. Rows for unknown ids
// are ignored.
func MergeAppend(records []*harvest.Record, previous []Row) {
	byID := make(map[int64]*harvest.Record, len(records))
	for _, r := range records {
		byID[r.Str.ID] = r
	}
	for _, row := range previous {
		r, ok := byID[row.ID]
		if !ok || strings.TrimSpace(row.AIContext) == "" {
			continue
		}
		for _, fragment := range strings.Split(row.AIContext, "\n") {
			if strings.TrimSpace(fragment) != "" {
				r.Extracted = append(r.Extracted, fragment)
			}
		}
	}
}
