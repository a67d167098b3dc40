package portal

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/assaykit/assaykit/internal/metadata"
	"github.com/assaykit/assaykit/internal/metadata/metadatatest"
	"github.com/assaykit/assaykit/internal/table"
)

func TestCurvePoints(t *testing.T) {
	c := Curve{Lower: 0, Upper: 1, EC50: 1, Slope: 1, MinDose: 0.25, MaxDose: 4}
	x, y := c.Points(CurvePoints)
	require.Len(t, x, CurvePoints)
	require.Len(t, y, CurvePoints)
	assert.Equal(t, -2.0, x[0])
	assert.Equal(t, 2.0, x[CurvePoints-1])
	assert.InDelta(t, 0.8, y[0], 1e-10)
	assert.InDelta(t, 0.2, y[CurvePoints-1], 1e-10)
	for i := 1; i < len(y); i++ {
		assert.LessOrEqual(t, y[i], y[i-1])
	}
	assert.Equal(t, y[5], math.Round(y[5]*1e10)/1e10)
}

func TestCurveFrom(t *testing.T) {
	tbl, err := table.FromStrings(CurveFields, [][]string{
		{"0", "1", "1", "1", "0.1", "10"},
		{"0", "1", "NA", "1", "0.1", "10"},
		{"0", "1", "1", "1", "0", "10"},
	})
	require.NoError(t, err)

	_, ok := CurveFrom(tbl.Row(0))
	assert.True(t, ok)
	_, ok = CurveFrom(tbl.Row(1))
	assert.False(t, ok)
	_, ok = CurveFrom(tbl.Row(2))
	assert.False(t, ok)
}

func TestDRCJSON(t *testing.T) {
	tbl, err := table.FromStrings(
		append([]string{"pert_iname", "auc"}, CurveFields...),
		[][]string{
			{"drugA", "0.5", "0", "1", "1", "1", "0.25", "4"},
			{"drugB", "NA", "0", "1", "NA", "1", "0.25", "4"},
		},
	)
	require.NoError(t, err)

	out, err := DRCJSON(tbl)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(out))

	res := gjson.GetBytes(out, "result")
	require.Len(t, res.Array(), 2)
	first := res.Array()[0]
	assert.Equal(t, "drugA", first.Get("pert_iname").String())
	assert.Equal(t, gjson.Number, first.Get("auc").Type)
	assert.Len(t, first.Get("points.x").Array(), CurvePoints)
	assert.Len(t, first.Get("points.y").Array(), CurvePoints)
	assert.Equal(t, -2.0, first.Get("points.x.0").Float())

	second := res.Array()[1]
	assert.Equal(t, gjson.Null, second.Get("auc").Type)
	assert.True(t, second.Get("points").Exists())
	assert.Equal(t, gjson.Null, second.Get("points").Type)
}

func TestTopBiomarkers(t *testing.T) {
	tbl, err := table.FromStrings([]string{"feature", "coef"}, [][]string{
		{"a", "0.1"}, {"b", "-0.9"}, {"c", "NA"}, {"d", "0.5"}, {"e", "-0.5"},
	})
	require.NoError(t, err)

	top, err := TopBiomarkers(tbl, 3, "t.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "e"}, top.Unique("feature"))

	all, err := TopBiomarkers(tbl, 10, "t.csv")
	require.NoError(t, err)
	assert.Equal(t, "c", all.Value(4, "feature").String())

	_, err = TopBiomarkers(table.Empty("feature"), 3, "t.csv")
	var mc *table.MissingColumnsError
	assert.ErrorAs(t, err, &mc)
}

func TestExtractBiomarkers(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "continuous_associations.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("feature,coef\nx,0.1\ny,2\nz,-1\n"), 0o644))

	out, err := ExtractBiomarkers([]string{src}, "", 2)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a", "top_2_biomarkers.csv")}, out)
	b, err := os.ReadFile(out[0])
	require.NoError(t, err)
	assert.Equal(t, "feature,coef\ny,2\nz,-1\n", string(b))

	_, err = ExtractBiomarkers([]string{src, src}, dir, 2)
	assert.Error(t, err)
}

func TestDeriveKeys(t *testing.T) {
	keys := `[
		{"x_project_id":"P1","pert_iname":"a","n":1},
		{"x_project_id":"P1","pert_iname":"b","n":2},
		{"x_project_id":"P2","pert_iname":"c","n":3}
	]`
	d, err := DeriveKeys([]byte(keys))
	require.NoError(t, err)

	uniques := gjson.ParseBytes(d["_uniques"]).Array()
	require.Len(t, uniques, 2)
	assert.Equal(t, "a", uniques[0].Get("pert_iname").String())
	assert.Equal(t, "P2", uniques[1].Get("x_project_id").String())

	levels := gjson.ParseBytes(d["_levels"]).Array()
	require.Len(t, levels, 2*len(Levels))
	assert.Equal(t, `{"x_project_id":"P1","level":"inst_info"}`, levels[0].Raw)

	features := gjson.ParseBytes(d["_features"]).Array()
	require.Len(t, features, 3*len(Features))
	assert.Equal(t, `{"x_project_id":"P1","pert_iname":"a","n":1,"feature":"x-all"}`, features[0].Raw)

	assert.Len(t, gjson.ParseBytes(d["_proj_search_pattern"]).Array(), 2*len(ProjectSearchPatterns))
	search := gjson.ParseBytes(d["_search_pattern"]).Array()
	require.Len(t, search, 3*len(SearchPatterns))
	assert.Equal(t, "RF_table*", search[3].Get("pattern").String())

	_, err = DeriveKeys([]byte(`{"x":1}`))
	assert.Error(t, err)
	_, err = DeriveKeys([]byte(`[1]`))
	assert.Error(t, err)
}

func TestWriteProjectKeys(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "compound_key.json")
	require.NoError(t, os.WriteFile(src, []byte(`[{"x_project_id":"P1"}]`), 0o644))

	out := filepath.Join(dir, "out")
	written, err := WriteProjectKeys(src, out)
	require.NoError(t, err)
	require.Len(t, written, len(KeySuffixes))
	assert.Equal(t, filepath.Join(out, "compound_key_uniques.json"), written[0])
	for _, p := range written {
		assert.FileExists(t, p)
	}
}

func newRegistry(t *testing.T) (*metadata.Client, *metadatatest.Server) {
	t.Helper()
	srv := metadatatest.NewServer("secret")
	t.Cleanup(srv.Close)
	c, err := metadata.NewClient(metadata.Config{APIKey: "secret", URL: srv.APIURL(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c, srv
}

func TestRegister(t *testing.T) {
	c, srv := newRegistry(t)
	ctx := context.Background()
	opts := RegisterOptions{Project: "MTS_PRJ", IndexURL: "https://reports/index.html", Build: "B1", Roles: []string{"core", "ext"}}

	res, err := Register(ctx, c, opts, nil)
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.Equal(t, "REVIEW--MTS PRJ", res.Analysis.Name)
	assert.Equal(t, []string{"core", "ext"}, srv.Roles(res.ID))

	again, err := Register(ctx, c, opts, nil)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, res.ID, again.ID)
	assert.Len(t, srv.Records("preliminary-analysis"), 1)
}

func TestRegister_Validation(t *testing.T) {
	c, _ := newRegistry(t)
	_, err := Register(context.Background(), c, RegisterOptions{Project: "P"}, nil)
	assert.Error(t, err)
}
