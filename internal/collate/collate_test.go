package collate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var plateSpec = matrix.Spec{
	RowID:   "rid",
	ColID:   "profile_id",
	Value:   "v",
	RowMeta: []string{"barcode_id", "det_plate"},
	ColMeta: []string{"pert_dose", "data_level", "provenance"},
}

func writePlate(t *testing.T, dir, name, detPlate string, profiles ...string) {
	t.Helper()
	var records [][]string
	for _, p := range profiles {
		records = append(records,
			[]string{"r1", p, "1", "BC1", detPlate, "10.00000", "2", "x"},
			[]string{"r2", p, "2", "BC2", detPlate, "10.00000", "2", "x"},
		)
	}
	long, err := table.FromStrings([]string{"rid", "profile_id", "v", "barcode_id", "det_plate", "pert_dose", "data_level", "provenance"}, records)
	require.NoError(t, err)
	r, err := matrix.Build(long, plateSpec)
	require.NoError(t, err)
	_, err = gct.Write(dir, name, r, gct.Options{Format: gct.Text})
	require.NoError(t, err)
}

func TestPlates(t *testing.T) {
	proj := t.TempDir()
	build := t.TempDir()
	for _, plate := range []string{"PL1", "PL2"} {
		dir := filepath.Join(proj, plate, "assemble", plate)
		writePlate(t, dir, plate+"_MEDIAN", plate+"_det", plate+":A01", plate+":A02")
		writePlate(t, dir, plate+"_COUNT", plate+"_det", plate+":A01", plate+":A02")
	}

	res, err := Plates(PlateOptions{
		ProjDir:         proj,
		CohortName:      "COH",
		BuildDir:        build,
		ExcludeBarcodes: []string{"BC2"},
		Format:          gct.Text,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(build, "COH_LEVEL2_MFI_n4x1.gct"),
		filepath.Join(build, "COH_LEVEL2_COUNT_n4x1.gct"),
	}, res.Matrices)

	mfi, err := gct.Read(res.Matrices[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, mfi.RowIDs)
	assert.Empty(t, mfi.RowMeta.Fields)

	inst, err := table.ReadFile(res.InstInfo)
	require.NoError(t, err)
	assert.Equal(t, []string{"profile_id", "pert_dose"}, inst.Columns())
	assert.Equal(t, "10", inst.Value(0, "pert_dose").S)
	assert.Equal(t, 4, inst.Len())

	cell, err := table.ReadFile(res.CellInfo)
	require.NoError(t, err)
	assert.Equal(t, []string{"rid", "barcode_id"}, cell.Columns())
}

func TestPlates_NoFiles(t *testing.T) {
	_, err := Plates(PlateOptions{ProjDir: t.TempDir(), CohortName: "C", BuildDir: t.TempDir()})
	assert.Error(t, err)
}

func TestProject(t *testing.T) {
	data := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(data, "PRJ", "drugA", "drugA_LEVEL4_LFC_n1x1.csv"), "x_project_id,screen,LFC\nOLD,S0,1\n")
	writeFile(t, filepath.Join(data, "PRJ", "drugB", "drugB_LEVEL4_LFC_n1x1.csv"), "x_project_id,LFC,extra\nOLD,2,e\n")
	writeFile(t, filepath.Join(data, "PRJ", "drugA", "drugA_LEVEL4_LFC_COMBAT_n1x1.csv"), "x_project_id,LFC\nOLD,3\n")
	writeFile(t, filepath.Join(data, "PRJ", "drugA", "LEVEL4_LFC_drugA_n1x1.gct"), "#1.3\n")
	writeFile(t, filepath.Join(data, "PRJ", "drugA", "drugA_DRC_TABLE.csv"), "pert_iname,auc\ndrugA,0.5\n")

	merged, err := Project(ProjectOptions{DataDir: data, OutDir: out, Project: "NEW", Screen: "MTS9"})
	require.NoError(t, err)

	byPattern := make(map[string]Merged)
	for _, m := range merged {
		byPattern[m.Pattern] = m
	}
	require.Len(t, byPattern, 3)
	assert.Equal(t, 2, byPattern["LEVEL4_LFC"].Stats.Files)
	assert.Equal(t, 1, byPattern["LEVEL4_LFC_COMBAT"].Stats.Files)

	lfc, err := table.ReadFile(filepath.Join(out, "NEW_LEVEL4_LFC.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW"}, lfc.Unique("x_project_id"))
	assert.Equal(t, []string{"MTS9"}, lfc.Unique("screen"))

	drc, err := table.ReadFile(filepath.Join(out, "NEW_DRC_TABLE.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pert_iname", "auc"}, drc.Columns())
}

func TestMergeOutputName(t *testing.T) {
	tests := []struct {
		name string
		opts MergeOptions
		want string
	}{
		{"pattern", MergeOptions{Pattern: "*DRC_TABLE*"}, "DRC_TABLE.csv"},
		{"prefix", MergeOptions{Pattern: "*DRC_TABLE*.csv", FilePrefix: "BUILD_"}, "BUILD_DRC_TABLE.csv"},
		{"outfile", MergeOptions{Pattern: "*", OutFile: "all.csv", FilePrefix: "X"}, "all.csv"},
		{"project", MergeOptions{Pattern: "*RF_table*", DataDir: "/data/PRJ1/", AddProjectName: true}, "PRJ1_RF_table.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeOutputName(tt.opts))
		})
	}
}

func TestMergeCSV(t *testing.T) {
	data := t.TempDir()
	writeFile(t, filepath.Join(data, "a_DRC_TABLE.csv"), "id,auc\n1,0.5\n")
	writeFile(t, filepath.Join(data, "b_DRC_TABLE.csv"), "id,ic50\n2,3\n")

	out := t.TempDir()
	m, err := MergeCSV(MergeOptions{DataDir: data, OutDir: out, Pattern: "*DRC_TABLE*"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "DRC_TABLE.csv"), m.Path)
	assert.Equal(t, []string{"id", "auc", "ic50"}, m.Stats.Columns)

	_, err = MergeCSV(MergeOptions{DataDir: data, OutDir: out, Pattern: "*nothing*"})
	assert.True(t, table.IsNoMatch(err))
}

func TestMergeBuilds(t *testing.T) {
	dir1, dir2, dest := t.TempDir(), t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(dir1, "PRJ", "data.csv"), "id,v\n1,\n")
	writeFile(t, filepath.Join(dir2, "PRJ", "data.csv"), "id,w\n2,x\n")
	writeFile(t, filepath.Join(dir1, "only1.txt"), "one")
	writeFile(t, filepath.Join(dir2, "sub", "only2.csv"), "a\n1\n")

	files, err := MergeBuilds(dir1, dir2, dest, nil)
	require.NoError(t, err)
	actions := make(map[string]BuildAction)
	for _, f := range files {
		actions[f.Rel] = f.Action
	}
	assert.Equal(t, map[string]BuildAction{
		filepath.Join("PRJ", "data.csv"):  Concatenated,
		"only1.txt":                       Copied,
		filepath.Join("sub", "only2.csv"): Copied,
	}, actions)

	merged, err := os.ReadFile(filepath.Join(dest, "PRJ", "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,v,w\n1,NA,NA\n2,NA,x\n", string(merged))
}

func TestConcat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "PRJ1", "data", "PRJ1_LEVEL3_LMFI.csv"), "rid,LMFI\nr1,1\n")
	writeFile(t, filepath.Join(dir, "PRJ2", "data", "PRJ2_LEVEL3_LMFI.csv"), "rid,culture\nr2,PR300\n")

	out := filepath.Join(t.TempDir(), "all.csv")
	m, err := Concat(dir, filepath.Join("*", "*", "*LEVEL3*.csv"), out)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Stats.Files)
	assert.Equal(t, []string{"rid", "LMFI", "culture"}, m.Stats.Columns)

	back, err := table.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())

	_, err = Concat(dir, "*.csv", out)
	assert.True(t, table.IsNoMatch(err))
}
