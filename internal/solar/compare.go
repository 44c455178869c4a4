package solar

import (
	"sort"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// StationComparison joins per-station archives on datetime into one wide
// table per correction type: datetime, then one column per station in the
// order given. Timestamps missing at a station leave an empty cell.
// Stations without a table, or whose table lacks the type, are left out.
func StationComparison(stations []string, tables map[string]*archive.Table) map[string]*archive.Table {
	out := make(map[string]*archive.Table, len(StationColumns))
	for _, col := range StationColumns {
		out[col] = joinStations(stations, tables, col)
	}
	return out
}

type joinedRow struct {
	key    string
	sortAt int64
	cells  map[string]string
}

func joinStations(stations []string, tables map[string]*archive.Table, column string) *archive.Table {
	var present []string
	rows := make(map[string]*joinedRow)

	for _, station := range stations {
		t := tables[station]
		if t == nil || !t.HasColumn(column) || !t.HasColumn("datetime") {
			continue
		}
		present = append(present, station)
		times := t.Column("datetime")
		values := t.Column(column)
		for i, raw := range times {
			ts, ok := archive.ParseTime(raw, archive.TimeWall)
			if !ok {
				continue
			}
			key := archive.FormatTime(ts)
			r, exists := rows[key]
			if !exists {
				r = &joinedRow{key: key, sortAt: ts.UnixNano(), cells: make(map[string]string)}
				rows[key] = r
			}
			if _, seen := r.cells[station]; !seen {
				r.cells[station] = values[i]
			}
		}
	}

	ordered := make([]*joinedRow, 0, len(rows))
	for _, r := range rows {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].sortAt < ordered[j].sortAt })

	t := archive.NewTable(append([]string{"datetime"}, present...)...)
	for _, r := range ordered {
		row := make([]string, 0, len(present)+1)
		row = append(row, r.key)
		for _, station := range present {
			row = append(row, r.cells[station])
		}
		t.Append(row...)
	}
	return t
}
