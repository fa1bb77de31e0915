package usecases

import (
	"context"

	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
)

type ResolutionStatus string

const (
	ResolutionResolved      ResolutionStatus = "resolved"
	ResolutionUnmapped      ResolutionStatus = "unmapped"
	ResolutionLookupFailed  ResolutionStatus = "lookup_failed"
	ResolutionNotConfigured ResolutionStatus = "not_configured"
)

// Resolution is the result of mapping an organization to a tenant. Every
// status other than resolved sends the turn to the claim flow.
type Resolution struct {
	TenantID string
	Status   ResolutionStatus
}

func (r Resolution) Resolved() bool {
	return r.Status == ResolutionResolved && r.TenantID != ""
}

// TenantResolver re-resolves the organization on every turn; mappings are
// owned by the lookup service and never cached here.
type TenantResolver struct {
	lookup interfaces.TenantLookup
	logger logging.Logger
}

// NewTenantResolver accepts a nil lookup when the lookup service is not
// configured.
func NewTenantResolver(lookup interfaces.TenantLookup, logger logging.Logger) *TenantResolver {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &TenantResolver{lookup: lookup, logger: logger}
}

func (r *TenantResolver) Resolve(ctx context.Context, orgID string) Resolution {
	if r.lookup == nil {
		return Resolution{Status: ResolutionNotConfigured}
	}

	tenantID, err := r.lookup.Lookup(ctx, orgID)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"request_id":      logging.RequestIDFromContext(ctx),
			"organization_id": orgID,
		}).WithError(err).Warn("Tenant lookup failed")
		return Resolution{Status: ResolutionLookupFailed}
	}
	if tenantID == "" {
		return Resolution{Status: ResolutionUnmapped}
	}
	return Resolution{TenantID: tenantID, Status: ResolutionResolved}
}
