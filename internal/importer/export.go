package importer

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gps-cli/internal/model"
)

// baseColumns lead every export row. They describe the All role filter.
var baseColumns = []string{"scope_level", "scope_name", "month", "headcount", "completed", "responses", "completion_rate"}

// ExportColumns returns the flat export header: base columns, then one
// column per role filter, category, and statistic.
func ExportColumns() []string {
	cols := append([]string(nil), baseColumns...)
	for _, d := range descriptors() {
		for _, s := range model.Stats {
			cols = append(cols, d.Column(s))
		}
	}
	return cols
}

func descriptors() []model.FieldDescriptor {
	var out []model.FieldDescriptor
	for _, r := range model.RoleFilters {
		for _, c := range model.MetricCategories {
			d, err := model.Descriptor(c, r)
			if err != nil {
				// Both enumerations are closed; this cannot fail.
				panic(err)
			}
			out = append(out, d)
		}
	}
	return out
}

type exportKey struct {
	scope model.Scope
	month model.Month
}

// FlattenSummaries groups summaries into one flat row per scope and month,
// newest month first. Missing role filters leave their columns at zero.
func FlattenSummaries(summaries []model.AggregateSummary) [][]any {
	byKey := make(map[exportKey]map[model.RoleFilter]model.AggregateSummary)
	var keys []exportKey
	for _, s := range summaries {
		k := exportKey{s.Scope, s.Month}
		if _, ok := byKey[k]; !ok {
			byKey[k] = make(map[model.RoleFilter]model.AggregateSummary)
			keys = append(keys, k)
		}
		byKey[k][s.Role] = s
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.month != b.month {
			return a.month.After(b.month)
		}
		if a.scope.Level != b.scope.Level {
			return a.scope.Level > b.scope.Level
		}
		return a.scope.Name < b.scope.Name
	})

	descs := descriptors()
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		roles := byKey[k]
		all := roles[model.RoleAll]
		row := []any{
			string(k.scope.Level), k.scope.Name, k.month.String(),
			all.Headcount, all.Completed, all.Responses, all.CompletionRate,
		}
		for _, d := range descs {
			r := roles[d.Role].Metrics[d.Category]
			for _, s := range model.Stats {
				row = append(row, d.Value(r, s))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportSummaries writes summaries to an XLSX file at path.
func ExportSummaries(path string, summaries []model.AggregateSummary) (int, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("summaries")
	if err != nil {
		return 0, eris.Wrap(err, "importer: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range ExportColumns() {
		header.AddCell().SetString(c)
	}
	rows := FlattenSummaries(summaries)
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			cell := row.AddCell()
			switch v := v.(type) {
			case string:
				cell.SetString(v)
			case int:
				cell.SetInt(v)
			case float64:
				cell.SetFloat(v)
			}
		}
	}
	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "importer: save %s", path)
	}
	return len(rows), nil
}
