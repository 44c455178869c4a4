package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Codec reads and writes a whole table in one on-disk format.
type Codec interface {
	// Ext is the file extension including the leading dot.
	Ext() string
	Decode(f *os.File) (*Table, error)
	Encode(w io.Writer, t *Table) error
}

// Supported archive formats, as named in configuration.
const (
	FormatCSV     = "csv"
	FormatCSVGzip = "csv.gz"
	FormatCSVZstd = "csv.zst"
	FormatParquet = "parquet"
)

// Formats lists the supported archive formats.
var Formats = []string{FormatCSV, FormatCSVGzip, FormatCSVZstd, FormatParquet}

// CodecForFormat returns the codec for a configured format name.
func CodecForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return csvCodec{}, nil
	case FormatCSVGzip:
		return csvCodec{compression: FormatCSVGzip}, nil
	case FormatCSVZstd:
		return csvCodec{compression: FormatCSVZstd}, nil
	case FormatParquet:
		return parquetCodec{}, nil
	}
	return nil, fmt.Errorf("unsupported archive format %q", format)
}

// CodecForPath picks a codec from a file name's extension.
func CodecForPath(path string) (Codec, error) {
	lp := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lp, ".csv.gz"):
		return csvCodec{compression: FormatCSVGzip}, nil
	case strings.HasSuffix(lp, ".csv.zst"):
		return csvCodec{compression: FormatCSVZstd}, nil
	case strings.HasSuffix(lp, ".parquet"):
		return parquetCodec{}, nil
	case strings.HasSuffix(lp, ".csv"):
		return csvCodec{}, nil
	}
	return nil, fmt.Errorf("no archive codec for %s", path)
}

// csvCodec writes a header row followed by one record per row, optionally
// wrapped in gzip (parallel, pgzip) or zstd.
type csvCodec struct {
	compression string
}

func (c csvCodec) Ext() string {
	return "." + FormatCSV + strings.TrimPrefix(c.compression, FormatCSV)
}

func (c csvCodec) Decode(f *os.File) (*Table, error) {
	var r io.Reader = f
	switch c.compression {
	case FormatCSVGzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatCSVZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return readCSV(r)
}

func (c csvCodec) Encode(w io.Writer, t *Table) error {
	switch c.compression {
	case FormatCSVGzip:
		gz := pgzip.NewWriter(w)
		if err := writeCSV(gz, t); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	case FormatCSVZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if err := writeCSV(zw, t); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return writeCSV(w, t)
}

func readCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := NewTable(header...)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", t.Len()+2, err)
		}
		t.Append(record...)
	}
	return t, nil
}

func writeCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}
