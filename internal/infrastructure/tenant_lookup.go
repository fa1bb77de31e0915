package infrastructure

import (
	"context"
	"strings"
)

const ServiceTenantLookup = "tenant_lookup"

// TenantLookupClient maps an Azure AD tenant id to an internal tenant id.
type TenantLookupClient struct {
	backendClient
	url           string
	apiKey        string
	internalToken string
}

func NewTenantLookupClient(url, apiKey, internalToken string, opts ...ClientOption) *TenantLookupClient {
	return &TenantLookupClient{
		backendClient: newBackendClient(ServiceTenantLookup, opts...),
		url:           url,
		apiKey:        apiKey,
		internalToken: internalToken,
	}
}

type tenantLookupRequest struct {
	TeamsTenantID string `json:"teams_tenant_id"`
}

type tenantLookupResponse struct {
	TenantID *string `json:"tenant_id"`
}

// Lookup returns the mapped tenant id, or "" when the organization has no
// mapping. Transport, status and decode failures are returned as errors.
func (c *TenantLookupClient) Lookup(ctx context.Context, orgID string) (string, error) {
	var out tenantLookupResponse
	err := c.postJSON(ctx, postRequest{
		url: c.url,
		headers: map[string]string{
			"apikey":           c.apiKey,
			"x-internal-token": c.internalToken,
		},
		body:  tenantLookupRequest{TeamsTenantID: orgID},
		retry: true,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.TenantID == nil {
		return "", nil
	}
	return strings.TrimSpace(*out.TenantID), nil
}
