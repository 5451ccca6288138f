// Package csvchunk streams a header-led CSV file as fixed-size row chunks.
package csvchunk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const byteOrderMark = "\ufeff"

// ErrNoHeader reports an input without a header row.
var ErrNoHeader = errors.New("csv input has no header row")

// Row is one data row addressed by header name.
type Row struct {
	// Line is the 1-based line number the row started on.
	Line    int
	columns map[string]int
	values  []string
}

// Get returns the value of column key. Columns absent from the header report ok=false;
// short rows yield "" for their missing trailing columns.
func (r Row) Get(key string) (string, bool) {
	index, ok := r.columns[key]
	if !ok {
		return "", false
	}
	if index >= len(r.values) {
		return "", true
	}
	return r.values[index], true
}

// Skipped describes a malformed row that was left out of the stream.
type Skipped struct {
	Line   int
	Reason string
}

// Reader yields chunks of at most Size rows.
type Reader struct {
	reader  *csv.Reader
	header  []string
	columns map[string]int
	size    int
	// OnSkip, when set, is told about every malformed row.
	OnSkip func(Skipped)
}

// NewReader reads the header row of source. size values below 1 are treated as 1.
func NewReader(source io.Reader, size int) (*Reader, error) {
	reader := newCSVReader(source)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if size < 1 {
		size = 1
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], byteOrderMark)
	}
	columns := make(map[string]int, len(header))
	for index, name := range header {
		name = strings.TrimSpace(name)
		header[index] = name
		if _, seen := columns[name]; !seen {
			columns[name] = index
		}
	}
	return &Reader{reader: reader, header: header, columns: columns, size: size}, nil
}

func newCSVReader(source io.Reader) *csv.Reader {
	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// Header returns the column names.
func (r *Reader) Header() []string { return append([]string(nil), r.header...) }

// Next returns the next chunk. It returns io.EOF once the input is exhausted; a final
// partial chunk is returned with a nil error.
func (r *Reader) Next() ([]Row, error) {
	rows := make([]Row, 0, r.size)
	for len(rows) < r.size {
		row, err := r.nextRow()
		if errors.Is(err, io.EOF) {
			if len(rows) == 0 {
				return nil, io.EOF
			}
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Reader) nextRow() (Row, error) {
	for {
		values, err := r.reader.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.skip(Skipped{Line: parseErr.StartLine, Reason: parseErr.Err.Error()})
				continue
			}
			return Row{}, err
		}
		line, _ := r.reader.FieldPos(0)
		if len(values) > len(r.header) {
			r.skip(Skipped{Line: line, Reason: fmt.Sprintf("expected %d fields, saw %d", len(r.header), len(values))})
			continue
		}
		return Row{Line: line, columns: r.columns, values: values}, nil
	}
}

func (r *Reader) skip(skipped Skipped) {
	if r.OnSkip != nil {
		r.OnSkip(skipped)
	}
}

// CountRows counts the data rows of source that a Reader would yield.
func CountRows(source io.Reader) (int, error) {
	reader, err := NewReader(source, 1)
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		_, err := reader.nextRow()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++
	}
}
