package prune

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assaykit/assaykit/internal/table"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readString(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestConditions(t *testing.T) {
	conds, err := Conditions([]string{"a", "b"}, []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, []Condition{{"a", "1"}, {"b", "2"}}, conds)

	_, err = Conditions([]string{"a"}, nil)
	assert.Error(t, err)
	_, err = Conditions(nil, nil)
	assert.Error(t, err)
}

func TestRemoveRows(t *testing.T) {
	tbl, err := table.FromStrings([]string{"pert_iname", "dose"}, [][]string{
		{"drugA", "1"}, {"drugB", "1.0"}, {"", "2"}, {"drugC", "3"},
	})
	require.NoError(t, err)

	out, err := RemoveRows(tbl, []Condition{{"pert_iname", "drugA"}, {"dose", "1"}}, false, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"drugB", "drugC"}, out.Unique("pert_iname"))
	assert.Equal(t, 3, out.Len())

	_, err = RemoveRows(tbl, []Condition{{"missing", "x"}}, false, "t.csv")
	var mf *MissingFieldError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "missing", mf.Field)

	same, err := RemoveRows(tbl, []Condition{{"missing", "x"}}, true, "t.csv")
	require.NoError(t, err)
	assert.Equal(t, tbl, same)
}

func TestFilesAndDestination(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_DRC.csv"), "x\n1\n")
	writeFile(t, filepath.Join(dir, "b_DRC.json"), "[]")
	writeFile(t, filepath.Join(dir, "c.txt"), "x\n1\n")

	files, err := Files("", dir, []string{"*DRC*"})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = Files("c.txt", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.txt")}, files)

	_, err = Files("", "", nil)
	assert.Error(t, err)

	dst, err := Destination(filepath.Join(dir, "sub", "a.csv"), dir, "/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "sub", "a.csv"), dst)

	dst, err = Destination("/x/a.csv", "", "")
	require.NoError(t, err)
	assert.Equal(t, "/x/a.csv", dst)
}

func TestRemoveFromFile_JSONAndTSV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "keys.json")
	writeFile(t, src, `[{"pert_iname":"drugA","n":1},{"pert_iname":"drugB","n":2}]`)

	res, err := RemoveFromFile(src, src, []Condition{{"pert_iname", "drugA"}}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Before)
	assert.Equal(t, 1, res.After)

	back, err := table.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"drugB"}, back.Unique("pert_iname"))

	tsv := filepath.Join(dir, "inst.txt")
	writeFile(t, tsv, "id\tscreen\n1\tMTS1\n2\tMTS2\n")
	out := filepath.Join(dir, "out", "inst.txt")
	_, err = RemoveFromFile(tsv, out, []Condition{{"screen", "MTS2"}}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "id\tscreen\n1\tMTS1\n", readString(t, out))
}

func TestEPS(t *testing.T) {
	proj := t.TempDir()
	data := filepath.Join(proj, "PRJ", "data")
	writeFile(t, filepath.Join(data, "PRJ_DRC_TABLE.csv"), "pert_iname,auc,log2.ic50\ndrugA,0.5,1.2\n")
	writeFile(t, filepath.Join(data, "PRJ_IC50_MATRIX.csv"), "x\n1\n")
	body := "feature,pert_dose,coef\nf1,log2.ic50,0.1\nf2,log2.auc,0.2\n"
	for _, name := range []string{"continuous_associations", "discrete_associations", "RF_table", "model_table"} {
		writeFile(t, filepath.Join(data, "PRJ_"+name+".csv"), body)
	}

	plan, err := PlanEPS(proj)
	require.NoError(t, err)
	assert.Len(t, plan.Files(), 6)

	require.NoError(t, ApplyEPS(plan))
	assert.Equal(t, "pert_iname,auc\ndrugA,0.5\n", readString(t, plan.DRCTable))
	assert.NoFileExists(t, plan.IC50Matrix)
	for _, f := range plan.Biomarkers {
		assert.Equal(t, "feature,pert_dose,coef\nf2,log2.auc,0.2\n", readString(t, f))
	}

	_, err = PlanEPS(proj)
	assert.True(t, table.IsNoMatch(err))
}

type fakeWells struct {
	skipped *table.Table
	plates  []string
}

func (f *fakeWells) SkippedWells(_ context.Context, plates []string) (*table.Table, error) {
	f.plates = plates
	return f.skipped, nil
}

func TestFilterSkippedWells(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "B_LEVEL3_LMFI.csv"),
		"screen,pert_plate,pert_well,pool_id,replicate,LMFI\n"+
			"MTS1,PL1,A01,P1,X1,1\n"+
			"MTS1,PL1,A02,P1,X1,2\n"+
			"MTS1,PL2,A01,P1,X1,3\n")
	writeFile(t, filepath.Join(dir, "B_LEVEL4_LFC.csv"),
		"pert_plate,pert_well,LFC\nPL1,A01,0.1\nPL2,A03,0.2\n")

	skipped, err := table.FromStrings(
		[]string{"screen", "pert_plate", "assay_well_position", "pool_id", "replicate"},
		[][]string{{"MTS1", "PL1", "A01", "P1", "X1"}},
	)
	require.NoError(t, err)
	src := &fakeWells{skipped: skipped}

	res, err := FilterSkippedWells(context.Background(), src, dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PL1", "PL2"}, src.plates)
	require.Len(t, res.Files, 2)
	assert.Equal(t, 3, res.Files[0].Before)
	assert.Equal(t, 2, res.Files[0].After)
	assert.Equal(t, 1, res.Files[1].After)

	removed, err := table.ReadFile(res.Removed)
	require.NoError(t, err)
	assert.Equal(t, 2, removed.Len())
}

func TestDropSkippedWells_NoSharedColumns(t *testing.T) {
	data, err := table.FromStrings([]string{"a"}, [][]string{{"1"}})
	require.NoError(t, err)
	skipped, err := table.FromStrings([]string{"b"}, [][]string{{"1"}})
	require.NoError(t, err)
	_, _, err = DropSkippedWells(data, skipped)
	assert.Error(t, err)

	kept, removed, err := DropSkippedWells(data, table.Empty())
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Len())
	assert.Equal(t, 0, removed.Len())
}
