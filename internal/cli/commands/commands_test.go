package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/assaykit/assaykit/internal/metadata"
	"github.com/assaykit/assaykit/internal/metadata/metadatatest"
	"github.com/assaykit/assaykit/internal/table"
)

// syncBuffer guards a buffer written by spinner goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI executes assaykit with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := execute(root, append([]string{"--no-color"}, args...))
	return stdout.String(), stderr.String(), err
}

// isolate keeps the user's config and API settings out of a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{"API_KEY", "API_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPivotCommand(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "long.csv")
	writeFile(t, src, "rid,ccle_name,profile_id,pert_plate,LFC\n"+
		"r1,A,p1,PL1,0.5\n"+
		"r2,B,p1,PL1,1.5\n"+
		"r1,A,p2,PL1,-1\n")

	out := filepath.Join(dir, "out")
	stdout, _, err := runCLI(t, "pivot", "-d", src, "--data-header", "LFC",
		"--row-metadata-headers", "ccle_name", "--col-metadata-headers", "pert_plate",
		"--format", "gct", "-o", out, "-f", "PRJ")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "PRJ_n2x2.gct"))
	assert.Contains(t, stdout, "(2 x 2)")
}

func TestPivotCommand_MissingValueColumn(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "long.csv")
	writeFile(t, src, "rid,profile_id,LFC\nr1,p1,1\n")

	_, stderr, err := runCLI(t, "pivot", "-d", src, "--data-header", "LMFI", "-o", dir)
	require.Error(t, err)
	assert.Contains(t, stderr, "LMFI")
}

func TestPivotCommand_EmptyInput(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "long.csv")
	writeFile(t, src, "rid,profile_id,LFC\n")

	_, stderr, err := runCLI(t, "pivot", "-d", src, "--data-header", "LFC", "-o", dir)
	require.Error(t, err)
	assert.Contains(t, stderr, "EMPTY INPUT")
	assert.Contains(t, stderr, "No matrix was written.")
	written, _ := filepath.Glob(filepath.Join(dir, "result*"))
	assert.Empty(t, written)
}

func TestPivotCommand_DefaultFormat(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "long.csv")
	writeFile(t, src, "rid,profile_id,LFC\nr1,p1,1\n")

	_, _, err := runCLI(t, "pivot", "-d", src, "--data-header", "LFC", "-o", dir, "-f", "PRJ")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "PRJ_n1x1.arrow"))
}

func TestSplitThenPivotSplits(t *testing.T) {
	dir := isolate(t)
	key := filepath.Join(dir, "compound_key.csv")
	writeFile(t, key, "x_project_id,pert_iname\nP1,drugA\nP1,drugB\n")
	lfc := filepath.Join(dir, "build_LEVEL4_LFC.csv")
	writeFile(t, lfc, "x_project_id,pert_iname,profile_id,rid,LFC\n"+
		"P1,drugA,p1,r1,0.1\n"+
		"P1,drugA,p1,r2,0.2\n"+
		"P1,drugB,p2,r1,0.3\n"+
		"P2,drugC,p3,r1,0.4\n")

	splits := filepath.Join(dir, "splits")
	stdout, _, err := runCLI(t, "split", "--compound-key", key, "--lfc", lfc, "--out", splits)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote 3 files for 1 projects")

	project, _ := filepath.Glob(filepath.Join(splits, "P1", "P1_LEVEL4_LFC_n*.csv"))
	assert.Len(t, project, 1)

	_, stderr, err := runCLI(t, "pivot-splits", "--splits-dir", splits, "--project", "P1", "--all", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Pivoted 2 compounds")
	for _, pert := range []string{"drugA", "drugB"} {
		m, _ := filepath.Glob(filepath.Join(splits, "P1", pert, "LEVEL4_LFC_"+pert+"_n*.gct"))
		assert.Len(t, m, 1, pert)
	}
}

func TestConcatCommand(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "b1", "x_QC_TABLE.csv"), "ccle_name,dr\nA,2\n")
	writeFile(t, filepath.Join(dir, "b2", "x_QC_TABLE.csv"), "ccle_name,error_rate\nB,0.1\n")

	out := filepath.Join(dir, "qc.csv")
	_, _, err := runCLI(t, "concat", "--dir", dir, "-s", "*/*QC_TABLE*.csv", "--out", out)
	require.NoError(t, err)

	merged, err := table.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"ccle_name", "dr", "error_rate"}, merged.Columns())
	assert.Equal(t, 2, merged.Len())
}

func TestConcatCommand_NoMatch(t *testing.T) {
	dir := isolate(t)
	_, stderr, err := runCLI(t, "concat", "--dir", dir, "-s", "*.csv", "--out", filepath.Join(dir, "x.csv"))
	require.Error(t, err)
	assert.Contains(t, stderr, "*.csv")
}

func TestMergeCSVCommand(t *testing.T) {
	dir := isolate(t)
	data := filepath.Join(dir, "PRJ")
	writeFile(t, filepath.Join(data, "A", "data", "A_DRC_TABLE.csv"), "x;y\n1;2\n")
	writeFile(t, filepath.Join(data, "B", "data", "B_DRC_TABLE.csv"), "x;z\n3;4\n")
	// Only files two levels below the project are merged.
	writeFile(t, filepath.Join(data, "stray", "S_DRC_TABLE.csv"), "x;y\n5;6\n")

	stdout, _, err := runCLI(t, "merge-csv", "--data-dir", data, "-s", "*DRC_TABLE*",
		"--add-project-name", "--separator", ";")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 rows from 2 files")

	out := filepath.Join(data, "PRJ_DRC_TABLE.csv")
	require.FileExists(t, out)
	merged, err := table.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())
}

func TestSeparator(t *testing.T) {
	r, err := separator(`\t`)
	require.NoError(t, err)
	assert.Equal(t, '\t', r)
	_, err = separator(";;")
	assert.Error(t, err)
	_, err = separator("")
	assert.Error(t, err)
}

func TestQCFlagsCommand(t *testing.T) {
	dir := isolate(t)
	build := filepath.Join(dir, "MTS019")
	writeFile(t, filepath.Join(build, "MTS019_LEVEL3_LMFI.csv"),
		"instance_id,profile_id,ccle_name,prism_replicate,count,logMFI\n"+
			"i1,w1,A,R1,10,9\n"+
			"i2,w1,prism invariant 5,R1,30,9\n")
	writeFile(t, filepath.Join(build, "MTS019_QC_TABLE.csv"),
		"ccle_name,prism_replicate,dr,error_rate,ctl_vehicle_md\n"+
			"A,R1,2,0.01,7\n"+
			"prism invariant 5,R1,2,0.01,7\n")

	stdout, _, err := runCLI(t, "qc-flags", "--build-path", build)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Low count across well")

	flags, err := table.ReadFile(filepath.Join(build, "MTS019_QC_FLAG_TABLE.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"instance_id", "error_code", "error_desc"}, flags.Columns())
	assert.Equal(t, 3, flags.Len())
	assert.Equal(t, "1", flags.Value(0, "error_code").String())
}

func TestQCFlagsCommand_ThresholdsFromConfig(t *testing.T) {
	dir := isolate(t)
	th := filepath.Join(dir, "th.yaml")
	writeFile(t, th, "count: 5\nmcount: 5\n")
	cfg := filepath.Join(dir, "assaykit.yaml")
	writeFile(t, cfg, "qc:\n  thresholds_file: "+th+"\n")
	build := filepath.Join(dir, "b")
	writeFile(t, filepath.Join(build, "b_LEVEL3_LMFI.csv"),
		"instance_id,profile_id,ccle_name,prism_replicate,count,logMFI\ni1,w1,A,R1,10,9\n")
	writeFile(t, filepath.Join(build, "b_QC_TABLE.csv"),
		"ccle_name,prism_replicate,dr,error_rate,ctl_vehicle_md\nA,R1,2,0.01,7\n")

	_, _, err := runCLI(t, "--config", cfg, "qc-flags", "--build-path", build, "--name", "strict")
	require.NoError(t, err)
	flags, err := table.ReadFile(filepath.Join(build, "strict_QC_FLAG_TABLE.csv"))
	require.NoError(t, err)
	// The invariant control is absent, so only its rule can fire.
	for i := 0; i < flags.Len(); i++ {
		assert.NotEqual(t, "1", flags.Value(i, "error_code").String())
	}
}

func TestValidateMapCommand(t *testing.T) {
	dir := isolate(t)
	good := filepath.Join(dir, "good.txt")
	writeFile(t, good, "pert_dose\tpert_id\tpert_plate\tpert_iname\tpert_type\tx_project_id\tpert_vehicle\tpert_well\n")
	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, bad, "pert_dose\tpert_id\tpert_plate\n")

	_, _, err := runCLI(t, "validate-map", good)
	require.NoError(t, err)

	_, stderr, err := runCLI(t, "validate-map", bad)
	var missing *table.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Missing, "pert_well")
	assert.Contains(t, stderr, "pert_vehicle")
}

func TestRemoveDataCommand(t *testing.T) {
	dir := isolate(t)
	data := filepath.Join(dir, "build")
	writeFile(t, filepath.Join(data, "x_LEVEL3.csv"), "ccle_name,pert_plate\nA,P1\nB,P1\nA,P2\n")
	writeFile(t, filepath.Join(data, "sub", "y_LEVEL4.csv"), "ccle_name,LFC\nA,1\nC,2\n")

	out := filepath.Join(dir, "clean")
	_, _, err := runCLI(t, "remove-data", "--data-dir", data, "-s", "*LEVEL*.csv,*/*LEVEL*.csv",
		"--field", "ccle_name", "--value", "A", "--out", out)
	require.NoError(t, err)

	level3, err := table.ReadFile(filepath.Join(out, "x_LEVEL3.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, level3.Len())
	level4, err := table.ReadFile(filepath.Join(out, "sub", "y_LEVEL4.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, level4.Len())

	// in place, confirmed by --yes
	_, _, err = runCLI(t, "remove-data", "--file", filepath.Join(data, "x_LEVEL3.csv"),
		"--field", "pert_plate", "--value", "P2", "--yes")
	require.NoError(t, err)
	level3, err = table.ReadFile(filepath.Join(data, "x_LEVEL3.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, level3.Len())
}

func TestRemoveDataCommand_MissingField(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "x.csv")
	writeFile(t, src, "a\n1\n")

	_, _, err := runCLI(t, "remove-data", "--file", src, "--field", "b", "--value", "1", "--out", filepath.Join(dir, "o"))
	require.Error(t, err)

	_, _, err = runCLI(t, "remove-data", "--file", src, "--field", "b", "--value", "1",
		"--out", filepath.Join(dir, "o"), "--ignore-missing-fields")
	require.NoError(t, err)
}

func TestEPSPrepCommand(t *testing.T) {
	dir := isolate(t)
	data := filepath.Join(dir, "PRJ", "A", "data")
	writeFile(t, filepath.Join(data, "A_DRC_TABLE.csv"), "ccle_name,auc,log2.ic50\nX,0.5,1\n")
	writeFile(t, filepath.Join(data, "A_IC50_MATRIX.csv"), "x\n1\n")
	for _, name := range []string{"continuous_associations", "RF_table", "model_table", "discrete_associations"} {
		writeFile(t, filepath.Join(data, "A_"+name+".csv"), "pert_dose,coef\nlog2.ic50,1\nlog2.auc,2\n")
	}

	_, _, err := runCLI(t, "eps-prep", "--project-dir", filepath.Join(dir, "PRJ"), "--yes")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(data, "A_IC50_MATRIX.csv"))
	drc, err := table.ReadFile(filepath.Join(data, "A_DRC_TABLE.csv"))
	require.NoError(t, err)
	assert.False(t, drc.Has("log2.ic50"))
	rf, err := table.ReadFile(filepath.Join(data, "A_RF_table.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, rf.Len())
}

func TestDRCJSONCommand(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "DRC_TABLE.csv")
	writeFile(t, src, "ccle_name,lower_limit,upper_limit,ec50,slope,min_dose,max_dose\n"+
		"A,0,1,0.5,1,0.01,10\n"+
		"B,NA,1,0.5,1,0.01,10\n")

	_, _, err := runCLI(t, "drc-json", "--drc-table", src)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "DRC_TABLE.json"))
	require.NoError(t, err)
	doc := gjson.ParseBytes(data)
	assert.Equal(t, int64(2), doc.Get("result.#").Int())
	assert.Equal(t, int64(40), doc.Get("result.0.points.x.#").Int())
	assert.Equal(t, gjson.Null, doc.Get("result.1.points").Type)
	assert.Equal(t, gjson.Null, doc.Get("result.1.lower_limit").Type)
}

func TestExtractBiomarkersCommand(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "P1", "data", "continuous_associations.csv"),
		"feature,coef\na,0.1\nb,-3\nc,2\n")

	out := filepath.Join(dir, "out")
	_, _, err := runCLI(t, "extract-biomarkers", "--data-dir", dir,
		"-s", "*/data/*continuous_associations*.csv", "--top", "2", "--out", out)
	require.NoError(t, err)

	top, err := table.ReadFile(filepath.Join(out, "top_2_biomarkers.csv"))
	require.NoError(t, err)
	require.Equal(t, 2, top.Len())
	assert.Equal(t, "b", top.Value(0, "feature").String())
	assert.Equal(t, "c", top.Value(1, "feature").String())
}

func TestProjectKeysCommand(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "PRJ_compound_key.json")
	writeFile(t, src, `[{"x_project_id":"P1","pert_iname":"a"},{"x_project_id":"P1","pert_iname":"b"}]`)

	stdout, _, err := runCLI(t, "project-keys", "--compound-key", src)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote 5 key files")
	assert.FileExists(t, filepath.Join(dir, "PRJ_compound_key_levels.json"))
}

func TestRegisterAnalysisCommand(t *testing.T) {
	isolate(t)
	srv := metadatatest.NewServer("secret")
	t.Cleanup(srv.Close)
	t.Setenv("API_KEY", "secret")
	t.Setenv("API_URL", srv.APIURL())

	args := []string{"register-analysis", "--project", "PRJ_1", "--build-id", "MTS019",
		"--index-url", "https://reports.example.org/PRJ_1/index.html"}
	stdout, _, err := runCLI(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Registered REVIEW--PRJ 1")
	require.Len(t, srv.Records(metadata.PreliminaryAnalysisEndpoint), 1)

	stdout, _, err = runCLI(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "already registered")
	assert.Len(t, srv.Records(metadata.PreliminaryAnalysisEndpoint), 1)
}

func TestRegisterAnalysisCommand_NoKey(t *testing.T) {
	isolate(t)
	_, stderr, err := runCLI(t, "register-analysis", "--project", "P", "--build-id", "B", "--index-url", "u")
	require.ErrorIs(t, err, metadata.ErrNoAPIKey)
	assert.Contains(t, stderr, "API_KEY")
}

func TestFilterSkippedWellsCommand(t *testing.T) {
	dir := isolate(t)
	srv := metadatatest.NewServer("secret")
	t.Cleanup(srv.Close)
	t.Setenv("API_KEY", "secret")
	t.Setenv("API_URL", srv.APIURL())
	srv.Seed(metadata.SkippedWellEndpoint,
		metadatatest.Record{"pert_plate": "PL1", "assay_well_position": "A01"},
		metadatatest.Record{"pert_plate": "PL9", "assay_well_position": "A01"},
	)
	writeFile(t, filepath.Join(dir, "B_LEVEL3_LMFI.csv"), "pert_plate,pert_well,LMFI\nPL1,A01,1\nPL1,A02,2\n")

	stdout, _, err := runCLI(t, "filter-skipped-wells", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed 1 rows")

	kept, err := table.ReadFile(filepath.Join(dir, "B_LEVEL3_LMFI.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Len())
	assert.FileExists(t, filepath.Join(dir, "removed_wells.csv"))
}

func TestPublishAndFetch(t *testing.T) {
	dir := isolate(t)
	cfg := filepath.Join(dir, "assaykit.yaml")
	writeFile(t, cfg, "blob:\n  driver: fs\n  root: "+filepath.Join(dir, "store")+"\n")
	writeFile(t, filepath.Join(dir, "build", "MTS_LEVEL5_LFC.csv"), "a\n1\n")
	writeFile(t, filepath.Join(dir, "build", "reports", "index.html"), "<html></html>")

	stdout, _, err := runCLI(t, "--config", cfg, "publish", filepath.Join(dir, "build"), "--prefix", "builds/MTS")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Published 2 files")

	dest := filepath.Join(dir, "fetched")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	_, _, err = runCLI(t, "--config", cfg, "fetch", "--prefix", "builds/MTS", "--partial", "LEVEL5", "--dest", dest)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dest, "MTS_LEVEL5_LFC.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(got))
}

func TestLedgerRecordsRuns(t *testing.T) {
	dir := isolate(t)
	cfg := filepath.Join(dir, "assaykit.yaml")
	writeFile(t, cfg, "ledger:\n  driver: sqlite3\n  dsn: "+filepath.Join(dir, "ledger.db")+"\n")
	writeFile(t, filepath.Join(dir, "in", "a.csv"), "x\n1\n")

	_, _, err := runCLI(t, "--config", cfg, "concat", "--dir", filepath.Join(dir, "in"), "-s", "*.csv", "--out", filepath.Join(dir, "all.csv"))
	require.NoError(t, err)
	_, _, err = runCLI(t, "--config", cfg, "concat", "--dir", filepath.Join(dir, "missing"), "-s", "*.csv", "--out", filepath.Join(dir, "none.csv"))
	require.Error(t, err)

	stdout, _, err := runCLI(t, "--config", cfg, "runs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "succeeded")
	assert.Contains(t, stdout, "failed")
	assert.Equal(t, 2, strings.Count(stdout, "concat"))

	metrics := filepath.Join(dir, "metrics.prom")
	_, _, err = runCLI(t, "--config", cfg, "--metrics-file", metrics, "version")
	require.NoError(t, err)
	assert.FileExists(t, metrics)
}

func TestRunsCommand_NoLedger(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ledger configured")
}
