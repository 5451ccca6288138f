package fsops_test

import (
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"

	"github.com/temirov/llm-csv/internal/fsops"
)

func TestListInputs_InMemory(t *testing.T) {
	ops := fsops.NewMem()

	seed := map[string]string{
		"/in/b.csv":        "x\n1\n",
		"/in/a.CSV":        "x\n2\n",
		"/in/notes.txt":    "skip",
		"/in/.hidden.csv":  "skip",
		"/in/nested/c.csv": "skip",
	}
	for path, content := range seed {
		if err := afero.WriteFile(ops.Fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	testCases := []struct {
		name          string
		extensions    []string
		expectedNames []string
	}{
		{name: "csv only", extensions: []string{".csv"}, expectedNames: []string{"a", "b"}},
		{name: "without dot", extensions: []string{"txt"}, expectedNames: []string{"notes"}},
		{name: "several", extensions: []string{"csv", ".TXT"}, expectedNames: []string{"a", "b", "notes"}},
		{name: "none", extensions: nil, expectedNames: nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			files, err := ops.ListInputs("/in", testCase.extensions)
			if err != nil {
				t.Fatalf("ListInputs: %v", err)
			}
			if len(files) != len(testCase.expectedNames) {
				t.Fatalf("expected %d files, got %+v", len(testCase.expectedNames), files)
			}
			for index, file := range files {
				if file.BaseName != testCase.expectedNames[index] {
					t.Fatalf("file %d: expected %s, got %s", index, testCase.expectedNames[index], file.BaseName)
				}
			}
		})
	}
}

func TestListInputsMissingDirectory(t *testing.T) {
	if _, err := fsops.NewMem().ListInputs("/absent", []string{".csv"}); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	ops := fsops.NewMem()

	if err := ops.WriteFileAtomic("/out/deep/result.csv", func(writer io.Writer) error {
		_, err := io.WriteString(writer, "id\n1\n")
		return err
	}); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	content, err := afero.ReadFile(ops.Fs, "/out/deep/result.csv")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "id\n1\n" {
		t.Fatalf("unexpected content %q", content)
	}
	if !ops.FileExists("/out/deep/result.csv") || ops.FileExists("/out/deep") {
		t.Fatalf("FileExists should report files only")
	}

	failure := errors.New("encoder failed")
	err = ops.WriteFileAtomic("/out/deep/broken.csv", func(writer io.Writer) error {
		_, _ = io.WriteString(writer, "partial")
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if ops.FileExists("/out/deep/broken.csv") {
		t.Fatalf("failed write must not leave the target")
	}
	entries, err := afero.ReadDir(ops.Fs, "/out/deep")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only result.csv, found %d entries", len(entries))
	}
}

func TestRemoveStale(t *testing.T) {
	ops := fsops.NewMem()
	if err := afero.WriteFile(ops.Fs, "/out/.partial-123", []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := afero.WriteFile(ops.Fs, "/out/keep.csv", []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	removed, err := ops.RemoveStale("/out")
	if err != nil {
		t.Fatalf("RemoveStale: %v", err)
	}
	if removed != 1 || !ops.FileExists("/out/keep.csv") {
		t.Fatalf("unexpected cleanup result %d", removed)
	}
}
