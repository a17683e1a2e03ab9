package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileInfo describes a statement export waiting in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

const (
	importDir    = "import"
	processedDir = "import/processed"
)

// DefaultExtensions are the export file types picked up when none are
// configured. Some banks hand out the same semicolon export as .txt.
var DefaultExtensions = []string{".csv", ".txt"}

// Scan returns the statement exports in <repoRoot>/import/ whose extension
// matches one of exts, compared case-insensitively. Dotfiles and
// subdirectories are skipped. An empty exts means DefaultExtensions.
func Scan(repoRoot string, exts []string) ([]FileInfo, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	dir := filepath.Join(repoRoot, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !hasExtension(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, want := range exts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// MarkProcessed moves a file from import/ to import/processed/ and returns
// its new path. Banks reuse export names, so an earlier file of the same
// name is kept and the new one gets a numeric suffix ("umsatz-1.csv").
func MarkProcessed(repoRoot, fileName string) (string, error) {
	src := filepath.Join(repoRoot, importDir, fileName)
	dstDir := filepath.Join(repoRoot, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("creating processed dir: %w", err)
	}

	dst, err := freeName(dstDir, fileName)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return dst, nil
}

// freeName returns the first path in dir for fileName that does not exist yet.
func freeName(dir, fileName string) (string, error) {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	for n := 0; ; n++ {
		name := fileName
		if n > 0 {
			name = base + "-" + strconv.Itoa(n) + ext
		}
		p := filepath.Join(dir, name)
		_, err := os.Lstat(p)
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
	}
}
