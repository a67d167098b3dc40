// Package layout describes the files of an assay build and how derived
// files are named.
package layout

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/assaykit/assaykit/internal/table"
)

// Kind classifies a build file.
type Kind int

const (
	Metadata Kind = iota
	Report
	Data
	Matrix
	Key
)

func (k Kind) String() string {
	switch k {
	case Metadata:
		return "metadata"
	case Report:
		return "report"
	case Data:
		return "data"
	case Matrix:
		return "matrix"
	case Key:
		return "key"
	}
	return "unknown"
}

// Entry is one kind of file found in a build directory.
type Entry struct {
	Key     string
	Pattern string
	Kind    Kind
	// Annotated data carries profile metadata on every row. Unannotated
	// data is the long rid/cid form.
	Annotated bool
	// Optional entries may be missing from a build.
	Optional bool
}

// Build file keys.
const (
	InstInfo        = "inst_info"
	CellInfo        = "cell_info"
	QCTable         = "QC_TABLE"
	CompoundKey     = "compound_key"
	Level2Count     = "LEVEL2_COUNT"
	Level2MFI       = "LEVEL2_MFI"
	Level3LMFI      = "LEVEL3_LMFI"
	Level4LFC       = "LEVEL4_LFC"
	Level4LFCCombat = "LEVEL4_LFC_COMBAT"
	Level5LFC       = "LEVEL5_LFC"
	Level5LFCCombat = "LEVEL5_LFC_COMBAT"
)

var (
	instInfoEntry = Entry{Key: InstInfo, Pattern: "*_inst_info.txt", Kind: Metadata}
	cellInfoEntry = Entry{Key: CellInfo, Pattern: "*_cell_info.txt", Kind: Metadata}
	qcEntry       = Entry{Key: QCTable, Pattern: "*QC_TABLE*.csv", Kind: Report}
)

// DataLevels lists the data files of a build in processing order.
var DataLevels = []Entry{
	{Key: Level2Count, Pattern: "*_LEVEL2_COUNT*.csv", Kind: Data},
	{Key: Level2MFI, Pattern: "*_LEVEL2_MFI*.csv", Kind: Data},
	{Key: Level3LMFI, Pattern: "*_LEVEL3_LMFI*.csv", Kind: Data, Annotated: true},
	{Key: Level4LFC, Pattern: "*_LEVEL4_LFC_n*.csv", Kind: Data, Annotated: true},
	{Key: Level4LFCCombat, Pattern: "*_LEVEL4_LFC_COMBAT*.csv", Kind: Data, Annotated: true, Optional: true},
	{Key: Level5LFC, Pattern: "*_LEVEL5_LFC_n*.csv", Kind: Data, Annotated: true},
	{Key: Level5LFCCombat, Pattern: "*_LEVEL5_LFC_COMBAT*.csv", Kind: Data, Annotated: true, Optional: true},
}

// BuildContents lists every file deal knows about.
func BuildContents() []Entry {
	out := []Entry{instInfoEntry, cellInfoEntry, qcEntry}
	return append(out, DataLevels...)
}

// Lookup finds the entry for key.
func Lookup(key string) (Entry, bool) {
	for _, e := range BuildContents() {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// ControlTypes are the pert_type values kept alongside a project's own rows.
var ControlTypes = []string{"ctl_vehicle", "trt_poscon", "ctl_untrt"}

// IsControl reports whether pertType is a control type.
func IsControl(pertType string) bool {
	for _, c := range ControlTypes {
		if c == pertType {
			return true
		}
	}
	return false
}

// DefaultSigIDCols build a sig_id when a LEVEL5 table lacks one.
var DefaultSigIDCols = []string{"pert_plate", "culture", "pert_id", "pert_idose", "pert_time"}

var unsafeName = regexp.MustCompile(`[^0-9A-Za-z_-]+`)

// CleanName turns a compound name into a file-system safe name. Combination
// separators become underscores.
func CleanName(s string) string {
	return unsafeName.ReplaceAllString(strings.ReplaceAll(s, "|", "_"), "")
}

// WithSigID adds a sig_id column joined from cols with "_" when t has none.
// Null parts are written as NA.
func WithSigID(t *table.Table, cols []string) (*table.Table, error) {
	if t.Has("sig_id") {
		return t, nil
	}
	if err := table.Require(t, "sig_id columns", cols...); err != nil {
		return nil, err
	}
	return t.WithColumn("sig_id", func(r table.Row) table.Value {
		parts := make([]string, len(cols))
		for i, c := range cols {
			v := r.Get(c)
			if v.Valid {
				parts[i] = v.S
			} else {
				parts[i] = "NA"
			}
		}
		return table.Str(strings.Join(parts, "_"))
	}), nil
}

// DimsName returns "{prefix}_{key}_n{cols}x{rows}{ext}".
func DimsName(prefix, key string, cols, rows int, ext string) string {
	return fmt.Sprintf("%s_%s_n%dx%d%s", prefix, key, cols, rows, ext)
}

// CountDistinct counts the distinct non-null values of col.
func CountDistinct(t *table.Table, col string) int {
	return len(t.Unique(col))
}
