package usecases

import (
	"context"
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
)

type ClaimOutcome string

const (
	ClaimLinkSent      ClaimOutcome = "claim_link_sent"
	ClaimJustConnected ClaimOutcome = "claim_already_mapped"
	ClaimRefused       ClaimOutcome = "claim_rejected"
	ClaimMintFailed    ClaimOutcome = "claim_mint_failed"
	ClaimUnconfigured  ClaimOutcome = "claim_not_configured"
)

const qrImageSize = 256

// ClaimFlow starts onboarding for an organization that has no tenant
// mapping. It sends exactly one reply per call.
type ClaimFlow struct {
	minter interfaces.ClaimMinter
	out    replier
	qrCode bool
	logger logging.Logger
}

type ClaimFlowConfig struct {
	// Minter is nil when the claim service is not configured.
	Minter    interfaces.ClaimMinter
	Messenger interfaces.Messenger
	QRCode    bool
	Logger    logging.Logger
	Metrics   *monitoring.Metrics
}

func NewClaimFlow(cfg ClaimFlowConfig) *ClaimFlow {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ClaimFlow{
		minter: cfg.Minter,
		out:    replier{messenger: cfg.Messenger, logger: logger, metrics: cfg.Metrics},
		qrCode: cfg.QRCode,
		logger: logger,
	}
}

func (f *ClaimFlow) Start(ctx context.Context, conv entities.ConversationRef, orgID string) ClaimOutcome {
	fields := logging.Fields{
		"request_id":      logging.RequestIDFromContext(ctx),
		"organization_id": orgID,
	}

	if f.minter == nil {
		f.logger.WithFields(fields).Error("Claim flow misconfigured")
		f.out.text(ctx, conv, MsgClaimMisconfigured)
		return ClaimUnconfigured
	}

	f.logger.WithFields(fields).Info("Minting Teams claim token")
	result, err := f.minter.Mint(ctx, orgID)
	if err != nil {
		f.logger.WithFields(fields).WithError(err).Error("Claim token mint failed")
		f.out.text(ctx, conv, MsgClaimMintFailed)
		return ClaimMintFailed
	}

	switch result.Status {
	case entities.ClaimSucceeded:
		f.out.send(ctx, conv, f.onboardingReply(result.ClaimURL))
		return ClaimLinkSent
	case entities.ClaimAlreadyMapped:
		f.out.text(ctx, conv, MsgClaimAlreadyMapped)
		return ClaimJustConnected
	default:
		f.logger.WithFields(fields).WithField("error_code", result.ErrorCode).Warn("Claim token mint rejected")
		f.out.text(ctx, conv, MsgClaimRejected)
		return ClaimRefused
	}
}

// onboardingReply always carries the link as text; with QR codes enabled it
// also attaches a card with a scannable image of the same link.
func (f *ClaimFlow) onboardingReply(claimURL string) entities.Reply {
	reply := entities.Reply{Text: OnboardingText(claimURL)}
	if !f.qrCode {
		return reply
	}

	png, err := qrcode.Encode(claimURL, qrcode.Medium, qrImageSize)
	if err != nil {
		f.logger.WithError(err).Warn("Failed to encode claim QR code")
		return reply
	}
	reply.Card = &entities.Card{
		Type:    "AdaptiveCard",
		Schema:  adaptiveCardSchema,
		Version: adaptiveCardVersion,
		Body: []entities.CardElement{
			{Type: "Image", URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), AltText: "Claim link QR code", Size: "Medium"},
		},
		Actions: []entities.CardAction{
			{Type: "Action.OpenUrl", Title: "🔐 Connect organization", URL: claimURL},
		},
	}
	return reply
}
