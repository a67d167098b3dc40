// Package portal prepares build outputs for the data portal: dose response
// curves as JSON, top biomarker tables, compound key derivations and the
// analysis registration.
package portal

import (
	"bytes"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/assaykit/assaykit/internal/table"
)

// CurvePoints is the number of doses sampled per fitted curve.
const CurvePoints = 40

// Curve is a four parameter log-logistic fit from a DRC table row.
type Curve struct {
	Lower   float64
	Upper   float64
	EC50    float64
	Slope   float64
	MinDose float64
	MaxDose float64
}

// CurveFields are the DRC columns a Curve is read from.
var CurveFields = []string{"lower_limit", "upper_limit", "ec50", "slope", "min_dose", "max_dose"}

// CurveFrom reads the fit parameters of r. It reports false when a parameter
// is missing or not a number, or when a dose bound is not positive.
func CurveFrom(r table.Row) (Curve, bool) {
	var vals [6]float64
	for i, f := range CurveFields {
		v, ok := r.Get(f).Float()
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return Curve{}, false
		}
		vals[i] = v
	}
	c := Curve{Lower: vals[0], Upper: vals[1], EC50: vals[2], Slope: vals[3], MinDose: vals[4], MaxDose: vals[5]}
	if c.MinDose <= 0 || c.MaxDose <= 0 {
		return Curve{}, false
	}
	return c, true
}

// Response evaluates the curve at log2 dose x.
func (c Curve) Response(x float64) float64 {
	return c.Lower + (c.Upper-c.Lower)/(1+math.Pow(math.Exp2(x)/c.EC50, c.Slope))
}

// Points samples n log2 doses evenly between the dose bounds and the
// response at each, rounded to 10 decimals.
func (c Curve) Points(n int) (x, y []float64) {
	lo, hi := math.Log2(c.MinDose), math.Log2(c.MaxDose)
	x = make([]float64, n)
	y = make([]float64, n)
	for i := range x {
		switch {
		case n == 1:
			x[i] = lo
		case i == n-1:
			x[i] = hi
		default:
			x[i] = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		y[i] = math.Round(c.Response(x[i])*1e10) / 1e10
	}
	return x, y
}

type points struct {
	X []any `json:"x"`
	Y []any `json:"y"`
}

func jsonFloats(v []float64) []any {
	out := make([]any, len(v))
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[i] = f
	}
	return out
}

// DRCJSON renders a DRC table as {"result":[...]}. Every record keeps its
// columns and gains "points" with the sampled curve, or null when the row
// has no usable fit.
func DRCJSON(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := table.Write(&buf, t, table.JSON, table.WriteOptions{}); err != nil {
		return nil, err
	}
	records := gjson.ParseBytes(buf.Bytes()).Array()
	if len(records) != t.Len() {
		return nil, fmt.Errorf("encoded %d records for %d rows", len(records), t.Len())
	}

	arr := []byte{'['}
	for i, rec := range records {
		obj := []byte(rec.Get("@ugly").Raw)
		var err error
		if c, ok := CurveFrom(t.Row(i)); ok {
			x, y := c.Points(CurvePoints)
			obj, err = sjson.SetBytes(obj, "points", points{X: jsonFloats(x), Y: jsonFloats(y)})
		} else {
			obj, err = sjson.SetRawBytes(obj, "points", []byte("null"))
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if i > 0 {
			arr = append(arr, ',')
		}
		arr = append(arr, obj...)
	}
	arr = append(arr, ']')
	return sjson.SetRawBytes([]byte("{}"), "result", arr)
}
