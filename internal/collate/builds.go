package collate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// BuildAction says how merge-builds produced a file.
type BuildAction string

const (
	Concatenated BuildAction = "concatenated"
	PDFMerged    BuildAction = "pdf-merged"
	Copied       BuildAction = "copied"
)

// BuildFile is one file written by MergeBuilds.
type BuildFile struct {
	Rel    string
	Action BuildAction
}

// MergeBuilds combines two build trees into dest. CSV files present in both
// are concatenated with nulls written as NA, PDFs present in both are merged
// page by page, and any other file is copied from the build that has it.
func MergeBuilds(dir1, dir2, dest string, logger *zap.Logger) ([]BuildFile, error) {
	logger = telemetry.OrNop(logger)
	first, err := relFiles(dir1)
	if err != nil {
		return nil, err
	}
	second, err := relFiles(dir2)
	if err != nil {
		return nil, err
	}
	inSecond := make(map[string]bool, len(second))
	for _, rel := range second {
		inSecond[rel] = true
	}

	var out []BuildFile
	for _, rel := range first {
		a := filepath.Join(dir1, rel)
		b := filepath.Join(dir2, rel)
		dst := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return out, err
		}

		action := Copied
		switch ext := strings.ToLower(filepath.Ext(rel)); {
		case inSecond[rel] && ext == ".csv":
			action = Concatenated
			err = concatCSV(dst, a, b)
		case inSecond[rel] && ext == ".pdf":
			action = PDFMerged
			err = api.MergeCreateFile([]string{a, b}, dst, false, nil)
		default:
			err = copyFile(a, dst)
		}
		if err != nil {
			return out, fmt.Errorf("%s: %w", rel, err)
		}
		logger.Debug("build file merged", zap.String("file", rel), zap.String("action", string(action)))
		out = append(out, BuildFile{Rel: rel, Action: action})
		delete(inSecond, rel)
	}

	for _, rel := range second {
		if !inSecond[rel] {
			continue
		}
		dst := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return out, err
		}
		if err := copyFile(filepath.Join(dir2, rel), dst); err != nil {
			return out, fmt.Errorf("%s: %w", rel, err)
		}
		out = append(out, BuildFile{Rel: rel, Action: Copied})
	}
	return out, nil
}

func concatCSV(dst string, paths ...string) error {
	tables := make([]*table.Table, len(paths))
	for i, p := range paths {
		t, err := table.ReadFile(p)
		if err != nil {
			return err
		}
		tables[i] = t
	}
	return table.WriteFile(dst, table.Concat(tables...), table.WriteOptions{NullRep: "NA"})
}

func relFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
