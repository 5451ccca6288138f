package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	tempFilePattern = ".partial-*"
)

// Ops is the filesystem façade used by the runner. Production code uses the OS
// filesystem; tests use an in-memory one.
type Ops struct{ Fs afero.Fs }

func NewOS() Ops { return Ops{Fs: afero.NewOsFs()} }

func NewMem() Ops { return Ops{Fs: afero.NewMemMapFs()} }

func NewOps(fs afero.Fs) Ops { return Ops{Fs: fs} }

type FileInfo struct {
	AbsolutePath string
	BaseName     string
	Extension    string
	SizeBytes    int64
}

// ListInputs returns the regular files directly under dir whose extension matches one of
// extensions (case-insensitive), ordered by file name. Dot-files are skipped.
func (o Ops) ListInputs(dir string, extensions []string) ([]FileInfo, error) {
	entries, err := afero.ReadDir(o.Fs, filepath.Clean(dir))
	if err != nil {
		return nil, fmt.Errorf("list input directory %s: %w", dir, err)
	}
	wanted := make(map[string]struct{}, len(extensions))
	for _, extension := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(extension))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		wanted[normalized] = struct{}{}
	}

	var out []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if _, ok := wanted[strings.ToLower(ext)]; !ok {
			continue
		}
		out = append(out, FileInfo{
			AbsolutePath: filepath.Join(dir, name),
			BaseName:     strings.TrimSuffix(name, ext),
			Extension:    strings.ToLower(ext),
			SizeBytes:    entry.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseName+out[i].Extension < out[j].BaseName+out[j].Extension })
	return out, nil
}

func (o Ops) Open(path string) (afero.File, error) { return o.Fs.Open(filepath.Clean(path)) }

func (o Ops) EnsureDir(dir string) error { return o.Fs.MkdirAll(filepath.Clean(dir), defaultDirPerm) }

func (o Ops) FileExists(p string) bool {
	info, err := o.Fs.Stat(filepath.Clean(p))
	return err == nil && !info.IsDir()
}

// WriteFileAtomic writes through a temporary sibling and renames it into place, so
// path either holds the full content or does not exist.
func (o Ops) WriteFileAtomic(path string, write func(io.Writer) error) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := o.EnsureDir(dir); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	temp, err := afero.TempFile(o.Fs, dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temporary file in %s: %w", dir, err)
	}
	tempName := temp.Name()
	cleanup := func() { _ = o.Fs.Remove(tempName) }

	if err := write(temp); err != nil {
		_ = temp.Close()
		cleanup()
		return err
	}
	if err := temp.Sync(); err != nil {
		_ = temp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tempName, err)
	}
	if err := temp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tempName, err)
	}
	if err := o.Fs.Chmod(tempName, defaultFilePerm); err != nil && !os.IsNotExist(err) {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tempName, err)
	}
	if err := o.Fs.Rename(tempName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s to %s: %w", tempName, path, err)
	}
	return nil
}

// RemoveStale deletes leftover temporary files from interrupted writes under dir.
func (o Ops) RemoveStale(dir string) (int, error) {
	matches, err := afero.Glob(o.Fs, filepath.Join(filepath.Clean(dir), tempFilePattern))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, match := range matches {
		if err := o.Fs.Remove(match); err == nil {
			removed++
		}
	}
	return removed, nil
}
