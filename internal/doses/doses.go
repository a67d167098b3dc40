// Package doses normalizes dose annotations to plain decimal text.
package doses

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/assaykit/assaykit/internal/table"
)

const (
	// SigFigs is the number of significant digits kept.
	SigFigs = 4
	// MaxPlaces caps the digits after the decimal point.
	MaxPlaces = 6
	// Sep separates the doses of a combination.
	Sep = "|"
)

// Format rounds a numeric string to SigFigs significant digits and renders
// it without an exponent, trailing zeros or a trailing point.
func Format(raw string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("dose %q is not a number", raw)
	}
	if d.IsZero() {
		return "0", nil
	}
	// floor(log10(|d|)) from the coefficient length and exponent.
	mag := int32(d.NumDigits()) + d.Exponent() - 1
	return d.Round(SigFigs - mag - 1).Round(MaxPlaces).String(), nil
}

// FormatList formats a "|"-joined list of doses.
func FormatList(raw string) (string, error) {
	parts := strings.Split(raw, Sep)
	for i, p := range parts {
		f, err := Format(p)
		if err != nil {
			return "", err
		}
		parts[i] = f
	}
	return strings.Join(parts, Sep), nil
}

// FormatIDoseList formats a "|"-joined list of "value unit" doses. The unit
// is kept verbatim.
func FormatIDoseList(raw string) (string, error) {
	parts := strings.Split(raw, Sep)
	for i, p := range parts {
		value, unit, hasUnit := strings.Cut(strings.TrimSpace(p), " ")
		f, err := Format(value)
		if err != nil {
			return "", err
		}
		if hasUnit {
			f += " " + unit
		}
		parts[i] = f
	}
	return strings.Join(parts, Sep), nil
}

// Normalize rewrites pert_dose and pert_idose when present. Null cells stay
// null.
func Normalize(t *table.Table) (*table.Table, error) {
	out := t
	for col, fn := range map[string]func(string) (string, error){
		"pert_dose":  FormatList,
		"pert_idose": FormatIDoseList,
	} {
		if !out.Has(col) {
			continue
		}
		values := out.Column(col)
		formatted := make([]table.Value, len(values))
		for i, v := range values {
			if !v.Valid {
				continue
			}
			s, err := fn(v.S)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i+1, col, err)
			}
			formatted[i] = table.Str(s)
		}
		out = out.WithColumn(col, func(r table.Row) table.Value { return formatted[r.Index()] })
	}
	return out, nil
}
