// Package drift compares a reconstructed historical source tree with the
// current working tree and helps resolve misspelled deployment names.
package drift

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/pendergraft/deployvault/internal/observability/metrics"
)

// FileDiff is one file whose content differs between the trees.
type FileDiff struct {
	Path string
	Diff string
}

// Report is the result of a tree comparison.
type Report struct {
	Compared    int
	Differences []FileDiff
}

// Identical reports whether every compared file matched.
func (r *Report) Identical() bool {
	return len(r.Differences) == 0
}

// Detector compares source trees.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{logger: logger}
}

// Compare walks srcDir and every libDir under currentRoot and diffs each
// file that also exists at the same relative path under historicalRoot.
// Files present in only one tree are not reported.
func (d *Detector) Compare(historicalRoot, currentRoot, srcDir string, libDirs []string) (*Report, error) {
	report := &Report{}
	seen := make(map[string]bool)

	for _, dir := range append([]string{srcDir}, libDirs...) {
		if dir == "" {
			continue
		}
		absolute := filepath.IsAbs(dir)
		base := dir
		if !absolute {
			base = filepath.Join(currentRoot, dir)
		}
		err := filepath.WalkDir(base, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == base {
					return fs.SkipDir
				}
				return err
			}
			if entry.IsDir() {
				if entry.Name() == ".git" {
					return fs.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() {
				return nil
			}

			rel, err := treePath(currentRoot, path, absolute)
			if err != nil {
				return err
			}
			if seen[rel] {
				return nil
			}
			seen[rel] = true

			diff, compared, err := compareFile(filepath.Join(historicalRoot, filepath.FromSlash(rel)), path, rel)
			if err != nil {
				return err
			}
			if compared {
				report.Compared++
			}
			if diff != "" {
				report.Differences = append(report.Differences, FileDiff{Path: rel, Diff: diff})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", base, err)
		}
	}

	sort.Slice(report.Differences, func(i, j int) bool {
		return report.Differences[i].Path < report.Differences[j].Path
	})

	result := "identical"
	if !report.Identical() {
		result = "drifted"
	}
	metrics.Drift(result)
	d.logger.Debug("source trees compared", "compared", report.Compared, "differences", len(report.Differences))
	return report, nil
}

// treePath maps a file on disk to its slash path in the reconstructed tree.
// Files under an absolute directory keep their absolute path minus the
// leading separator, which is where absolute sources are materialized.
func treePath(currentRoot, path string, absolute bool) (string, error) {
	if absolute {
		p := filepath.ToSlash(strings.TrimPrefix(path, filepath.VolumeName(path)))
		return strings.TrimLeft(p, "/"), nil
	}
	rel, err := filepath.Rel(currentRoot, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// compareFile returns a unified diff of historical against current, or ""
// when they match. compared is false when the historical file is absent.
func compareFile(historical, current, rel string) (string, bool, error) {
	old, err := os.ReadFile(historical)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	cur, err := os.ReadFile(current)
	if err != nil {
		return "", false, err
	}
	if bytes.Equal(old, cur) {
		return "", true, nil
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(cur)),
		FromFile: "deployed/" + rel,
		ToFile:   "current/" + rel,
		Context:  3,
	})
	if err != nil {
		return "", true, fmt.Errorf("diffing %s: %w", rel, err)
	}
	return diff, true, nil
}
