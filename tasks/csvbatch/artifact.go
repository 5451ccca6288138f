package csvbatch

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/temirov/llm-csv/internal/fsops"
	"github.com/temirov/llm-csv/internal/pipeline"
)

// artifactHeader lists the configured fields first, then every other record key in name order.
func artifactHeader(fields []string, records []pipeline.Record) []string {
	header := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		header = append(header, field)
	}
	var extra []string
	for _, record := range records {
		for key := range record {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(header, extra...)
}

// writeArtifact stores records as CSV at path. With no columns at all the file is empty,
// which still marks the chunk as done.
func writeArtifact(fs fsops.Ops, path string, fields []string, records []pipeline.Record) error {
	header := artifactHeader(fields, records)
	return fs.WriteFileAtomic(path, func(out io.Writer) error {
		if len(header) == 0 {
			return nil
		}
		writer := csv.NewWriter(out)
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		line := make([]string, len(header))
		for _, record := range records {
			for index, column := range header {
				line[index] = pipeline.FormatValue(record[column])
			}
			if err := writer.Write(line); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()
	})
}
