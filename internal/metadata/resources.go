package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/assaykit/assaykit/internal/table"
)

// Endpoint names.
const (
	SkippedWellEndpoint         = "v_assay_plate_skipped_well"
	PreliminaryAnalysisEndpoint = "preliminary-analysis"
)

// SkippedWells returns the skipped-well records for the given plates. No
// plates means every record.
func (c *Client) SkippedWells(ctx context.Context, plates []string) (*table.Table, error) {
	f := NewFilter()
	if len(plates) > 0 {
		f.In("pert_plate", plates...)
	}
	return c.Table(ctx, SkippedWellEndpoint, f)
}

// Analysis is a registered analysis report.
type Analysis struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
}

const reviewPrefix = "REVIEW--"

// NewAnalysis builds the record for a project report. Project names use
// spaces instead of underscores; unapproved reports are staged for review.
func NewAnalysis(project, indexURL string, approved bool) Analysis {
	name := strings.ReplaceAll(project, "_", " ")
	a := Analysis{
		Name:        name,
		Description: name,
		URL:         indexURL,
		Status:      "APPROVED",
		CreatedBy:   "MTS",
	}
	if !approved {
		a.Name = reviewPrefix + name
		a.Status = "REVIEW"
	}
	return a
}

// PreliminaryAnalysis finds analyses registered under name. A 404 is an
// empty result.
func (c *Client) PreliminaryAnalysis(ctx context.Context, name string) ([]Analysis, error) {
	body, err := c.Find(ctx, PreliminaryAnalysisEndpoint, NewFilter().Eq("name", name))
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode %s response: invalid JSON", PreliminaryAnalysisEndpoint)
	}

	var out []Analysis
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		out = append(out, analysisFrom(v))
		return true
	})
	return out, nil
}

// CreateExternalAnalysis registers a under build and returns the new id.
func (c *Client) CreateExternalAnalysis(ctx context.Context, build string, a Analysis) (string, error) {
	body, err := c.Post(ctx, "data/"+build+"/external_analysis", a)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id")
	if !id.Exists() {
		return "", fmt.Errorf("create analysis %q: response has no id", a.Name)
	}
	return id.String(), nil
}

// AssociateRoles replaces the roles allowed to see an analysis.
func (c *Client) AssociateRoles(ctx context.Context, analysisID string, roles []string) error {
	base := PreliminaryAnalysisEndpoint + "/" + analysisID + "/role"
	if err := c.Delete(ctx, base); err != nil && !IsNotFound(err) {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, err := c.Put(ctx, base+"/rel/"+role, struct{}{}); err != nil {
			return fmt.Errorf("associate role %s: %w", role, err)
		}
	}
	return nil
}

func analysisFrom(v gjson.Result) Analysis {
	return Analysis{
		ID:          v.Get("id").String(),
		Name:        v.Get("name").String(),
		Description: v.Get("description").String(),
		URL:         v.Get("url").String(),
		Status:      v.Get("status").String(),
		CreatedBy:   v.Get("created_by").String(),
	}
}
