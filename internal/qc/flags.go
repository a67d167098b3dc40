package qc

import (
	"sort"
	"strconv"

	"github.com/assaykit/assaykit/internal/table"
)

// Code identifies a QC rule.
type Code int

const (
	LowInstanceCount Code = iota + 1
	LowWellCount
	LowControlSignal
	LowDynamicRange
	HighErrorRate
	LowVehicleMedian
)

var descriptions = map[Code]string{
	LowInstanceCount: "Low count for a single cell line",
	LowWellCount:     "Low count across well",
	LowControlSignal: "Low control signal in well",
	LowDynamicRange:  "Low dynamic range for cell line in plate",
	HighErrorRate:    "High error rate for cell line in plate",
	LowVehicleMedian: "Low vehicle median for cell line in plate",
}

// Codes lists every rule in report order.
var Codes = []Code{LowInstanceCount, LowWellCount, LowControlSignal, LowDynamicRange, HighErrorRate, LowVehicleMedian}

// String returns the rule description.
func (c Code) String() string { return descriptions[c] }

// ControlAnalyte is the invariant bead used for the well control signal.
const ControlAnalyte = "prism invariant 5"

// Flag marks one instance as failing one rule.
type Flag struct {
	InstanceID string
	Code       Code
}

var (
	mfiSchema = table.Schema{Fields: []table.Field{
		{Name: "instance_id"},
		{Name: "profile_id"},
		{Name: "ccle_name"},
		{Name: "prism_replicate"},
		{Name: "count", Kind: table.Number},
		{Name: "logMFI", Kind: table.Number},
	}}
	qcSchema = table.Schema{Fields: []table.Field{
		{Name: "ccle_name"},
		{Name: "prism_replicate"},
		{Name: "dr", Kind: table.Number},
		{Name: "error_rate", Kind: table.Number},
		{Name: "ctl_vehicle_md", Kind: table.Number},
	}}
)

// Evaluate applies every rule to the LEVEL3 table mfi and the QC table.
// Flags come back grouped by code; within a code each instance appears once
// in first-seen order.
func Evaluate(mfi, qcTable *table.Table, th Thresholds) ([]Flag, error) {
	if err := mfiSchema.Validate(mfi, "LEVEL3_LMFI"); err != nil {
		return nil, err
	}
	if err := qcSchema.Validate(qcTable, "QC_TABLE"); err != nil {
		return nil, err
	}

	byCode := make(map[Code]*idSet, len(Codes))
	for _, c := range Codes {
		byCode[c] = newIDSet()
	}

	counts := make(map[string][]float64)
	controls := make(map[string][]float64)
	for i := 0; i < mfi.Len(); i++ {
		r := mfi.Row(i)
		well := r.String("profile_id")
		if c, ok := r.Get("count").Float(); ok {
			counts[well] = append(counts[well], c)
			if c < th.Count {
				byCode[LowInstanceCount].add(r.String("instance_id"))
			}
		}
		if r.String("ccle_name") == ControlAnalyte {
			if v, ok := r.Get("logMFI").Float(); ok {
				controls[well] = append(controls[well], v)
			}
		}
	}

	lowCount := make(map[string]bool)
	for well, vals := range counts {
		if median(vals) < th.MedianCount {
			lowCount[well] = true
		}
	}
	lowControl := make(map[string]bool)
	for well, vals := range controls {
		if median(vals) < th.ControlMedianMFI {
			lowControl[well] = true
		}
	}

	plateRules := map[Code]map[string]bool{
		LowDynamicRange:  {},
		HighErrorRate:    {},
		LowVehicleMedian: {},
	}
	for i := 0; i < qcTable.Len(); i++ {
		r := qcTable.Row(i)
		cp := cellPlate(r)
		if v, ok := r.Get("dr").Float(); ok && v < th.DynamicRange {
			plateRules[LowDynamicRange][cp] = true
		}
		if v, ok := r.Get("error_rate").Float(); ok && v > th.ErrorRate {
			plateRules[HighErrorRate][cp] = true
		}
		if v, ok := r.Get("ctl_vehicle_md").Float(); ok && v < th.VehicleMedian {
			plateRules[LowVehicleMedian][cp] = true
		}
	}

	for i := 0; i < mfi.Len(); i++ {
		r := mfi.Row(i)
		id := r.String("instance_id")
		well := r.String("profile_id")
		if lowCount[well] {
			byCode[LowWellCount].add(id)
		}
		if lowControl[well] {
			byCode[LowControlSignal].add(id)
		}
		cp := cellPlate(r)
		for _, c := range []Code{LowDynamicRange, HighErrorRate, LowVehicleMedian} {
			if plateRules[c][cp] {
				byCode[c].add(id)
			}
		}
	}

	var flags []Flag
	for _, c := range Codes {
		for _, id := range byCode[c].ids {
			flags = append(flags, Flag{InstanceID: id, Code: c})
		}
	}
	return flags, nil
}

// Table renders flags as instance_id, error_code, error_desc.
func Table(flags []Flag) *table.Table {
	rows := make([][]table.Value, len(flags))
	for i, f := range flags {
		rows[i] = []table.Value{
			table.Str(f.InstanceID),
			table.Str(strconv.Itoa(int(f.Code))),
			table.Str(f.Code.String()),
		}
	}
	t, _ := table.New([]string{"instance_id", "error_code", "error_desc"}, rows)
	return t
}

// Summary counts flags per code.
func Summary(flags []Flag) map[Code]int {
	out := make(map[Code]int)
	for _, f := range flags {
		out[f.Code]++
	}
	return out
}

func cellPlate(r table.Row) string {
	return r.String("ccle_name") + ":" + r.String("prism_replicate")
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

type idSet struct {
	seen map[string]bool
	ids  []string
}

func newIDSet() *idSet { return &idSet{seen: make(map[string]bool)} }

func (s *idSet) add(id string) {
	if id == "" || s.seen[id] {
		return
	}
	s.seen[id] = true
	s.ids = append(s.ids, id)
}
