package portal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/metadata"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// DefaultRoles may view a newly registered analysis.
var DefaultRoles = []string{"cmap_core"}

// AnalysisRegistry is the part of the metadata API registration needs.
type AnalysisRegistry interface {
	PreliminaryAnalysis(ctx context.Context, name string) ([]metadata.Analysis, error)
	CreateExternalAnalysis(ctx context.Context, build string, a metadata.Analysis) (string, error)
	AssociateRoles(ctx context.Context, analysisID string, roles []string) error
}

// RegisterOptions describe one project report.
type RegisterOptions struct {
	Project  string
	IndexURL string
	Build    string
	Roles    []string
	Approved bool
}

// Registration is the outcome of Register.
type Registration struct {
	Analysis metadata.Analysis
	ID       string
	// Existing is set when an analysis of the same name was already
	// registered; nothing is created then.
	Existing bool
}

// Register records a project report as an external analysis of a build and
// grants roles access to it.
func Register(ctx context.Context, reg AnalysisRegistry, opts RegisterOptions, logger *zap.Logger) (Registration, error) {
	logger = telemetry.OrNop(logger)
	if opts.Project == "" || opts.IndexURL == "" || opts.Build == "" {
		return Registration{}, fmt.Errorf("project, index URL and build are required")
	}
	a := metadata.NewAnalysis(opts.Project, opts.IndexURL, opts.Approved)
	res := Registration{Analysis: a}

	found, err := reg.PreliminaryAnalysis(ctx, a.Name)
	if err != nil {
		return res, fmt.Errorf("look up %q: %w", a.Name, err)
	}
	if len(found) > 0 {
		logger.Info("analysis already registered", zap.String("name", a.Name), zap.String("id", found[0].ID))
		res.ID = found[0].ID
		res.Existing = true
		return res, nil
	}

	if res.ID, err = reg.CreateExternalAnalysis(ctx, opts.Build, a); err != nil {
		return res, err
	}
	roles := opts.Roles
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	if err := reg.AssociateRoles(ctx, res.ID, roles); err != nil {
		return res, err
	}
	logger.Info("analysis registered",
		zap.String("name", a.Name), zap.String("id", res.ID), zap.Strings("roles", roles))
	return res, nil
}
