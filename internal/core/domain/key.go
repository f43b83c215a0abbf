package domain

import "strings"

// LedgerIDSeparator joins the two blueprint ids of a ledger key.
const LedgerIDSeparator = "__"

var keySanitizer = strings.NewReplacer("/", "_", "\\", "_")

// LedgerID derives the document key of the ledger for a product/token
// blueprint pairing. Field order is always product first, then token.
func LedgerID(productBlueprintID, tokenBlueprintID string) string {
	return sanitizeKeyPart(productBlueprintID) + LedgerIDSeparator + sanitizeKeyPart(tokenBlueprintID)
}

func sanitizeKeyPart(s string) string {
	return keySanitizer.Replace(strings.TrimSpace(s))
}
