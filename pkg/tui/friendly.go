package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var friendlyNames = map[string]string{
	"START":                 "START",
	"APP_SUBMIT":            "Application Submission",
	"INITIAL_REVIEW":        "Initial Review",
	"REQ_CHECK":             "Requirements Check",
	"HEALTH_INSPECTION":     "Health Inspection",
	"INFO_REQUEST":          "Information Request",
	"APPLICANT_RESPONSE":    "Applicant Response",
	"MANAGER_APPROVAL":      "Manager Approval",
	"PERMIT_REGISTERED":     "Permit Registered",
	"PLACARD_ISSUED":        "Placard Issued (QR)",
	"APPROVED":              "Approved",
	"LABEL_READY_DIGITAL":   "Label Ready (Digital)",
	"LABEL_DISPATCH_POSTAL": "Label Dispatched (Postal)",
	"REJECTED":              "Rejected",
	"WITHDRAWN":             "Withdrawn",
	"APPEAL_PROCESS":        "Appeal Process",
}

// FriendlyName turns an activity id like MANAGER_APPROVAL into a display
// label. Known ids use a fixed table; others are title-cased.
func FriendlyName(id string) string {
	if name, ok := friendlyNames[id]; ok {
		return name
	}
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// DefaultLabelWidth is the truncation width used for node labels.
const DefaultLabelWidth = 24

// TruncateLabel shortens text to width runes, ending in an ellipsis.
func TruncateLabel(text string, width int) string {
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	r := []rune(text)
	if width <= 1 {
		return string(r[:max(width, 0)])
	}
	return string(r[:width-1]) + "…"
}
