package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// columnsMetaKey stores the table's column order; a parquet group schema
// orders its fields by name.
const columnsMetaKey = "swx.columns"

const parquetReadBatch = 1024

// parquetCodec stores every column as an optional zstd-compressed string.
// Empty cells are written as nulls.
type parquetCodec struct{}

func (parquetCodec) Ext() string { return "." + FormatParquet }

func (parquetCodec) Encode(w io.Writer, t *Table) error {
	group := parquet.Group{}
	for _, c := range t.Columns {
		group[c] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("archive", group)

	order, err := json.Marshal(t.Columns)
	if err != nil {
		return err
	}
	pw := parquet.NewWriter(w, schema,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(columnsMetaKey, string(order)),
	)

	fields := schema.Fields()
	src := make([]int, len(fields))
	for i, f := range fields {
		src[i] = t.Index(f.Name())
	}

	rows := make([]parquet.Row, 0, parquetReadBatch)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(rows); err != nil {
			return fmt.Errorf("parquet write: %w", err)
		}
		rows = rows[:0]
		return nil
	}
	for _, cells := range t.Rows {
		row := make(parquet.Row, len(fields))
		for i, j := range src {
			if j < len(cells) && cells[j] != "" {
				row[i] = parquet.ByteArrayValue([]byte(cells[j])).Level(0, 1, i)
			} else {
				row[i] = parquet.NullValue().Level(0, 0, i)
			}
		}
		rows = append(rows, row)
		if len(rows) == cap(rows) {
			if err := flush(); err != nil {
				pw.Close()
				return err
			}
		}
	}
	if err := flush(); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

func (parquetCodec) Decode(f *os.File) (*Table, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open: %w", err)
	}

	fields := pf.Schema().Fields()
	leaf := make([]string, len(fields))
	for i, fl := range fields {
		leaf[i] = fl.Name()
	}

	columns := leaf
	if meta, ok := pf.Lookup(columnsMetaKey); ok {
		var order []string
		if err := json.Unmarshal([]byte(meta), &order); err == nil && len(order) == len(leaf) {
			columns = order
		}
	}
	t := NewTable(columns...)
	dst := make([]int, len(leaf))
	for i, name := range leaf {
		dst[i] = t.Index(name)
	}

	buf := make([]parquet.Row, parquetReadBatch)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				cells := make([]string, len(columns))
				for _, v := range row {
					col := v.Column()
					if col < 0 || col >= len(dst) || v.IsNull() {
						continue
					}
					cells[dst[col]] = string(v.ByteArray())
				}
				t.Rows = append(t.Rows, cells)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("parquet read: %w", err)
			}
		}
		rows.Close()
	}
	return t, nil
}
