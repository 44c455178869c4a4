package solar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// parseNOAAJSON decodes the two shapes SWPC serves:
//
//	[{"time_tag": "...", "kp": 2.33}, ...]     json/ endpoints
//	[["time_tag", "Kp"], ["...", "2.33"], ...] products/ endpoints, header row first
//
// Column order follows the order keys are first seen. Numbers keep their
// literal text and null becomes an empty cell.
func parseNOAAJSON(body []byte, _ Request) (*archive.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("%w: expected JSON array, got %v", ErrMalformed, tok)
	}

	t := archive.NewTable()
	haveHeader := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch tok {
		case json.Delim('{'):
			values, order, err := decodeObject(dec)
			if err != nil {
				return nil, err
			}
			t.AppendMap(values, order)
		case json.Delim('['):
			cells, err := decodeArray(dec)
			if err != nil {
				return nil, err
			}
			if !haveHeader {
				for _, c := range cells {
					t.AddColumn(c)
				}
				haveHeader = true
				continue
			}
			t.Append(cells...)
		default:
			return nil, fmt.Errorf("%w: unexpected element %v", ErrMalformed, tok)
		}
	}
	if tok, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: unterminated array: %v", ErrMalformed, err)
	} else if d, ok := tok.(json.Delim); !ok || d != ']' {
		return nil, fmt.Errorf("%w: unterminated array at %v", ErrMalformed, tok)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformed)
	}
	return t, nil
}

func decodeObject(dec *json.Decoder) (map[string]string, []string, error) {
	values := make(map[string]string)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: object key %v", ErrMalformed, tok)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("%w: field %s: %v", ErrMalformed, name, err)
		}
		if _, dup := values[name]; !dup {
			order = append(order, name)
		}
		values[name] = cellText(v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return values, order, nil
}

func decodeArray(dec *json.Decoder) ([]string, error) {
	var cells []string
	for dec.More() {
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		cells = append(cells, cellText(v))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cells, nil
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// projectColumns wraps a parser and keeps only the named columns.
func projectColumns(parse ParseFunc, columns ...string) ParseFunc {
	return func(body []byte, req Request) (*archive.Table, error) {
		t, err := parse(body, req)
		if err != nil {
			return nil, err
		}
		if t.Len() == 0 && len(t.Columns) == 0 {
			return archive.NewTable(columns...), nil
		}
		out, err := t.Select(columns...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return out, nil
	}
}
