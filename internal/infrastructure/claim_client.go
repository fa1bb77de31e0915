package infrastructure

import (
	"context"

	"teams_bridge/internal/entities"
)

const (
	ServiceClaimMint = "claim_mint"

	claimErrorAlreadyMapped = "already_mapped"
)

// ClaimClient mints onboarding claim links for unmapped organizations.
// Minting is not idempotent and is never retried.
type ClaimClient struct {
	backendClient
	mintURL       string
	internalToken string
}

func NewClaimClient(mintURL, internalToken string, opts ...ClientOption) *ClaimClient {
	return &ClaimClient{
		backendClient: newBackendClient(ServiceClaimMint, opts...),
		mintURL:       mintURL,
		internalToken: internalToken,
	}
}

type claimMintRequest struct {
	TeamsTenantID string `json:"teams_tenant_id"`
}

type claimMintResponse struct {
	Success  bool   `json:"success"`
	ClaimURL string `json:"claim_url"`
	Error    string `json:"error"`
}

// Mint asks the backend for a claim link. Transport and status failures are
// returned as errors; a decoded body always yields a ClaimResult.
func (c *ClaimClient) Mint(ctx context.Context, orgID string) (entities.ClaimResult, error) {
	var out claimMintResponse
	err := c.postJSON(ctx, postRequest{
		url:     c.mintURL,
		headers: map[string]string{"x-internal-token": c.internalToken},
		body:    claimMintRequest{TeamsTenantID: orgID},
	}, &out)
	if err != nil {
		return entities.ClaimResult{}, err
	}
	return decodeClaimResult(out), nil
}

func decodeClaimResult(out claimMintResponse) entities.ClaimResult {
	switch {
	case out.Success && out.ClaimURL != "":
		return entities.ClaimResult{Status: entities.ClaimSucceeded, ClaimURL: out.ClaimURL}
	case out.Error == claimErrorAlreadyMapped:
		return entities.ClaimResult{Status: entities.ClaimAlreadyMapped}
	default:
		return entities.ClaimResult{Status: entities.ClaimRejected, ErrorCode: out.Error}
	}
}
