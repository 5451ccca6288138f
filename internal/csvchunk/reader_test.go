package csvchunk_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/temirov/llm-csv/internal/csvchunk"
)

func buildCSV(rows int) string {
	var builder strings.Builder
	builder.WriteString("id,title\n")
	for index := 0; index < rows; index++ {
		fmt.Fprintf(&builder, "%d,title %d\n", index, index)
	}
	return builder.String()
}

func TestReaderChunkSizes(t *testing.T) {
	testCases := []struct {
		name           string
		rows           int
		size           int
		expectedChunks []int
	}{
		{name: "exact multiple", rows: 200, size: 100, expectedChunks: []int{100, 100}},
		{name: "trailing partial", rows: 250, size: 100, expectedChunks: []int{100, 100, 50}},
		{name: "single chunk", rows: 3, size: 100, expectedChunks: []int{3}},
		{name: "header only", rows: 0, size: 10, expectedChunks: nil},
		{name: "size below one", rows: 2, size: 0, expectedChunks: []int{1, 1}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			reader, err := csvchunk.NewReader(strings.NewReader(buildCSV(testCase.rows)), testCase.size)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			var sizes []int
			for {
				chunk, err := reader.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("Next: %v", err)
				}
				sizes = append(sizes, len(chunk))
			}
			if fmt.Sprint(sizes) != fmt.Sprint(testCase.expectedChunks) {
				t.Fatalf("expected chunks %v, got %v", testCase.expectedChunks, sizes)
			}

			total, err := csvchunk.CountRows(strings.NewReader(buildCSV(testCase.rows)))
			if err != nil {
				t.Fatalf("CountRows: %v", err)
			}
			if total != testCase.rows {
				t.Fatalf("expected %d rows counted, got %d", testCase.rows, total)
			}
		})
	}
}

func TestReaderMalformedRows(t *testing.T) {
	input := "\ufeffid, title ,body\n" +
		"1,first,\"multi\nline\"\n" +
		"2,second\n" +
		"3,too,many,fields\n" +
		"4,bad \"quote\" here,x\n" +
		"5,fifth,ok\n"

	var skipped []csvchunk.Skipped
	reader, err := csvchunk.NewReader(strings.NewReader(input), 10)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	reader.OnSkip = func(s csvchunk.Skipped) { skipped = append(skipped, s) }

	if header := reader.Header(); header[0] != "id" || header[1] != "title" {
		t.Fatalf("unexpected header %q", header)
	}
	rows, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	var ids []string
	for _, row := range rows {
		id, _ := row.Get("id")
		ids = append(ids, id)
	}
	if strings.Join(ids, ",") != "1,2,5" {
		t.Fatalf("unexpected rows %v", ids)
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped rows, got %+v", skipped)
	}

	body, ok := rows[0].Get("body")
	if !ok || body != "multi\nline" {
		t.Fatalf("unexpected multi-line body %q", body)
	}
	body, ok = rows[1].Get("body")
	if !ok || body != "" {
		t.Fatalf("short row should pad with empty value, got %q %v", body, ok)
	}
	if _, ok := rows[0].Get("missing"); ok {
		t.Fatalf("unknown column should not be found")
	}
	if rows[2].Line != 7 {
		t.Fatalf("expected row 5 on line 7, got %d", rows[2].Line)
	}

	total, err := csvchunk.CountRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if total != 3 {
		t.Fatalf("CountRows should match streamed rows, got %d", total)
	}
}

func TestReaderEmptyInput(t *testing.T) {
	if _, err := csvchunk.NewReader(strings.NewReader(""), 5); !errors.Is(err, csvchunk.ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}
