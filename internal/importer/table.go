package importer

import (
	"strings"

	"github.com/rotisserie/eris"
)

// table indexes data rows by a normalized header row.
type table struct {
	columns map[string]int
	headers []string
	rows    [][]string
	// lines holds the 1-based sheet row of each entry in rows.
	lines []int
}

// normalizeHeader maps "Hire Date" and "hire_date" to the same key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "_")
}

func newTable(rows [][]string, required ...string) (*table, error) {
	if len(rows) == 0 {
		return nil, eris.New("importer: missing header row")
	}
	t := &table{columns: make(map[string]int, len(rows[0])), headers: rows[0]}
	for i, h := range rows[0] {
		if k := normalizeHeader(h); k != "" {
			if _, dup := t.columns[k]; !dup {
				t.columns[k] = i
			}
		}
	}
	var missing []string
	for _, r := range required {
		if _, ok := t.columns[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("importer: missing required columns: %s", strings.Join(missing, ", "))
	}
	for i, r := range rows[1:] {
		if !blank(r) {
			t.rows = append(t.rows, r)
			t.lines = append(t.lines, i+2)
		}
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.columns[col]
	return ok
}

// get returns the trimmed cell of row under col, or "".
func (t *table) get(row []string, col string) string {
	i, ok := t.columns[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
