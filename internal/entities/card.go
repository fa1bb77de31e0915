package entities

// Adaptive Card content type used in Bot Framework attachments.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Card is the subset of the Adaptive Card schema this bridge renders.
// Field order is fixed so identical cards marshal to identical bytes.
type Card struct {
	Type    string        `json:"type"`
	Schema  string        `json:"$schema,omitempty"`
	Version string        `json:"version"`
	Body    []CardElement `json:"body"`
	Actions []CardAction  `json:"actions,omitempty"`
}

type CardElement struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Wrap     bool   `json:"wrap,omitempty"`
	Weight   string `json:"weight,omitempty"`
	Size     string `json:"size,omitempty"`
	Spacing  string `json:"spacing,omitempty"`
	IsSubtle bool   `json:"isSubtle,omitempty"`
	URL      string `json:"url,omitempty"`
	AltText  string `json:"altText,omitempty"`
}

type CardAction struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	URL   string         `json:"url,omitempty"`
	Data  *ActionPayload `json:"data,omitempty"`
}
