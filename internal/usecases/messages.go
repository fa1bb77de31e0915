package usecases

// User-visible reply texts.
const (
	MsgUnknownOrganization = "⚠️ I can’t identify this Microsoft Teams organization yet."
	MsgClaimMisconfigured  = "⚠️ This Teams organization isn’t connected yet."
	MsgClaimMintFailed     = "⚠️ This Teams organization isn’t connected yet. Please try again shortly."
	MsgClaimAlreadyMapped  = "✅ This Teams organization was just connected. Please try again."
	MsgClaimRejected       = "⚠️ Unable to connect this Teams organization right now."
	MsgAnswerUnavailable   = "⚠️ Question answering is temporarily unavailable."
	MsgWorking             = "⏳ Working on it…"
	MsgAnswerFailed        = "❌ I couldn’t get an answer right now."
	MsgNoAnswer            = "No answer found."
	MsgFeedbackThanks      = "🙏 Thanks for the feedback!"
	MsgInternalError       = "Something went wrong."

	onboardingHeader = "👋 This Microsoft Teams organization isn’t connected to InnsynAI yet.\n\n" +
		"🔐 If you’re an InnsynAI admin, connect it here:\n"
)

// OnboardingText is the claim-link message for an unmapped organization.
func OnboardingText(claimURL string) string {
	return onboardingHeader + claimURL
}
