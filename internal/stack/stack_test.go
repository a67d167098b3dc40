package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/layout"
	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeMatrix(t *testing.T, dir, base string, records [][]string) {
	t.Helper()
	long, err := table.FromStrings([]string{"rid", "cid", "count"}, records)
	require.NoError(t, err)
	r, err := matrix.Build(long, matrix.Spec{RowID: "rid", ColID: "cid", Value: "count"})
	require.NoError(t, err)
	_, err = gct.Write(dir, base, r, gct.Options{Format: gct.Text, AppendDims: true})
	require.NoError(t, err)
}

func builds(t *testing.T) (string, string) {
	t.Helper()
	a, b := t.TempDir(), t.TempDir()

	writeFile(t, a, "A_inst_info.txt", "profile_id\tpert_dose\tpert_idose\np1\t10.00000\t10.00000 uM\n")
	writeFile(t, b, "B_inst_info.txt", "profile_id\tpert_dose\np2\t0.333333\n")
	writeFile(t, a, "A_compound_key.csv", "x_project_id,pert_iname\nPRJ1,drugA\nPRJ2,drugB\n")
	writeFile(t, b, "B_compound_key.csv", "x_project_id,pert_iname\nPRJ1,drugA\nPRJ3,drugC\n")
	writeFile(t, a, "A_LEVEL3_LMFI.csv", "profile_id,culture,ccle_name,LMFI\np1,PR500,A549,1\np1,PR500,HT29,2\n")
	writeFile(t, b, "B_LEVEL3_LMFI.csv", "profile_id,culture,ccle_name,LMFI\np2,PR500,A549,3\n")
	writeFile(t, a, "A_LEVEL5_LFC_n1x1.csv", "pert_plate,culture,ccle_name,pert_id,pert_idose,pert_time,LFC\nPL1,PR500,A549,BRD-1,10 uM,120,0.5\n")
	writeFile(t, b, "B_LEVEL5_LFC_n1x1.csv", "pert_plate,culture,ccle_name,pert_id,pert_idose,pert_time,LFC\nPL2,PR500,A549,BRD-1,10 uM,120,0.7\n")
	writeMatrix(t, a, "A_LEVEL2_COUNT", [][]string{{"r1", "c1", "5"}, {"r2", "c1", "6"}})
	writeMatrix(t, b, "B_LEVEL2_COUNT", [][]string{{"r1", "c2", "7"}})
	return a, b
}

func TestRun(t *testing.T) {
	a, b := builds(t)
	out := t.TempDir()

	written, err := Run(Options{
		Builds: []string{a, b},
		Name:   "STACK",
		OutDir: out,
		Keys: []string{layout.InstInfo, layout.CompoundKey, layout.Level2Count,
			layout.Level3LMFI, layout.Level5LFC},
	})
	require.NoError(t, err)
	require.Len(t, written, 5)

	inst, err := table.ReadFile(written[0].Path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "STACK_inst_info.txt"), written[0].Path)
	assert.Equal(t, []string{"10", "0.3333"}, inst.Unique("pert_dose"))
	assert.Equal(t, "10 uM", inst.Value(0, "pert_idose").S)

	key, err := table.ReadFile(written[1].Path)
	require.NoError(t, err)
	assert.Equal(t, 3, key.Len())

	assert.Equal(t, filepath.Join(out, "STACK_LEVEL2_COUNT_n2x3.csv"), written[2].Path)
	counts, err := table.ReadFile(written[2].Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rid", "cid", "value"}, counts.Columns())
	assert.Equal(t, 3, counts.Len())

	assert.Equal(t, filepath.Join(out, "STACK_LEVEL3_LMFI_n2x2.csv"), written[3].Path)
	lmfi, err := table.ReadFile(written[3].Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"PR500:A549", "PR500:HT29"}, lmfi.Unique("feature_id"))

	assert.Equal(t, filepath.Join(out, "STACK_LEVEL5_LFC_n2x1.csv"), written[4].Path)
}

func TestRun_RawDoses(t *testing.T) {
	a, b := builds(t)
	written, err := Run(Options{Builds: []string{a, b}, Name: "S", OutDir: t.TempDir(),
		Keys: []string{layout.InstInfo}, RawDoses: true})
	require.NoError(t, err)
	inst, err := table.ReadFile(written[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "10.00000", inst.Value(0, "pert_dose").S)
}

func TestRun_MissingInOneBuild(t *testing.T) {
	a, b := builds(t)
	_, err := Run(Options{Builds: []string{a, b}, Name: "S", OutDir: t.TempDir(),
		Keys: []string{layout.QCTable}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in 2 of 2 builds")

	_, err = Run(Options{Builds: []string{a, b}, Name: "S", OutDir: t.TempDir(),
		Keys: []string{"LEVEL9"}})
	assert.Error(t, err)
}

func TestRun_OptionalKeySkipped(t *testing.T) {
	a, b := builds(t)
	written, err := Run(Options{Builds: []string{a, b}, Name: "S", OutDir: t.TempDir(),
		Keys: []string{layout.Level5LFCCombat}})
	require.NoError(t, err)
	assert.Empty(t, written)
}
