package portal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Levels are the build files listed per project on the portal.
var Levels = []string{
	"inst_info", "cell_info", "QC_TABLE",
	"LEVEL2_COUNT", "LEVEL2_MFI", "LEVEL3_LMFI",
	"LEVEL4_LFC", "LEVEL4_LFC_COMBAT", "LEVEL5_LFC", "LEVEL5_LFC_COMBAT",
}

// Features are the biomarker feature sets searched per compound.
var Features = []string{
	"x-all", "x-ccle", "lin", "mut", "ge", "xpr",
	"cna", "met", "mirna", "rep", "prot", "shrna",
}

// ProjectSearchPatterns locate project level analysis outputs.
var ProjectSearchPatterns = []string{
	"continuous_associations.csv",
	"discrete_associations.csv",
	"DRC_TABLE.csv",
	"model_table.csv",
	"RF_table.csv",
}

// SearchPatterns locate per compound analysis outputs.
var SearchPatterns = []string{
	"discrete_associations*",
	"continuous_associations*",
	"model_table*",
	"RF_table*",
}

// KeySuffixes name the derived files, in the order they are written.
var KeySuffixes = []string{"_uniques", "_levels", "_features", "_proj_search_pattern", "_search_pattern"}

// DerivedKeys holds the JSON arrays derived from a compound key, by suffix.
type DerivedKeys map[string][]byte

// DeriveKeys expands a compound key JSON array. Objects keep their key order
// and gain one field per expansion.
func DeriveKeys(data []byte) (DerivedKeys, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("compound key: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("compound key: expected a JSON array of objects")
	}
	var keys [][]byte
	for i, rec := range root.Array() {
		if !rec.IsObject() {
			return nil, fmt.Errorf("compound key: record %d is not an object", i)
		}
		keys = append(keys, []byte(rec.Get("@ugly").Raw))
	}
	uniques := uniqueProjects(keys)

	levels := make([][]byte, 0, len(uniques)*len(Levels))
	for _, k := range uniques {
		id := gjson.GetBytes(k, "x_project_id")
		for _, level := range Levels {
			obj := []byte("{}")
			var err error
			if id.Exists() {
				if obj, err = sjson.SetRawBytes(obj, "x_project_id", []byte(id.Raw)); err != nil {
					return nil, err
				}
			}
			if obj, err = sjson.SetBytes(obj, "level", level); err != nil {
				return nil, err
			}
			levels = append(levels, obj)
		}
	}

	features, err := expand(keys, "feature", Features)
	if err != nil {
		return nil, err
	}
	projSearch, err := expand(uniques, "pattern", ProjectSearchPatterns)
	if err != nil {
		return nil, err
	}
	search, err := expand(keys, "pattern", SearchPatterns)
	if err != nil {
		return nil, err
	}

	return DerivedKeys{
		"_uniques":             jsonArray(uniques),
		"_levels":              jsonArray(levels),
		"_features":            jsonArray(features),
		"_proj_search_pattern": jsonArray(projSearch),
		"_search_pattern":      jsonArray(search),
	}, nil
}

// uniqueProjects keeps the first key of each x_project_id.
func uniqueProjects(keys [][]byte) [][]byte {
	seen := make(map[string]bool)
	var out [][]byte
	for _, k := range keys {
		id := gjson.GetBytes(k, "x_project_id").Raw
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, k)
	}
	return out
}

// expand returns one copy of every object per value, with field set.
func expand(objs [][]byte, field string, values []string) ([][]byte, error) {
	out := make([][]byte, 0, len(objs)*len(values))
	for _, o := range objs {
		for _, v := range values {
			c, err := sjson.SetBytes(append([]byte(nil), o...), field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func jsonArray(objs [][]byte) []byte {
	out := []byte{'['}
	for i, o := range objs {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, o...)
	}
	return append(out, ']')
}

// KeyPath names a derived file for the compound key at path.
func KeyPath(path, outDir, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".json") + suffix + ".json"
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	return filepath.Join(outDir, base)
}

// WriteProjectKeys derives the portal keys from the compound key JSON at path
// and writes them to outDir, next to the input when empty.
func WriteProjectKeys(path, outDir string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	derived, err := DeriveKeys(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, err
		}
	}
	var written []string
	for _, suffix := range KeySuffixes {
		dst := KeyPath(path, outDir, suffix)
		if err := os.WriteFile(dst, derived[suffix], 0o644); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}
