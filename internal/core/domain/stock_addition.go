package domain

import "strings"

// StockAddition is a batch of products minted for one model of a
// productBlueprint/tokenBlueprint pairing.
type StockAddition struct {
	TokenBlueprintID   string
	ProductBlueprintID string
	ModelID            string
	ProductIDs         []string
}

// Normalize trims every identifier and filters ProductIDs. It fails when a
// required identifier is blank or no product id survives the filter.
func (a StockAddition) Normalize() (StockAddition, error) {
	out := StockAddition{
		TokenBlueprintID:   strings.TrimSpace(a.TokenBlueprintID),
		ProductBlueprintID: strings.TrimSpace(a.ProductBlueprintID),
		ModelID:            strings.TrimSpace(a.ModelID),
		ProductIDs:         NormalizeIDs(a.ProductIDs),
	}

	if out.TokenBlueprintID == "" {
		return StockAddition{}, ErrInvalidTokenBlueprintID
	}
	if out.ProductBlueprintID == "" {
		return StockAddition{}, ErrInvalidProductBlueprintID
	}
	if out.ModelID == "" {
		return StockAddition{}, ErrInvalidModelID
	}
	if len(out.ProductIDs) == 0 {
		return StockAddition{}, ErrInvalidProducts
	}

	return out, nil
}

// Validate is Normalize without the result.
func (a StockAddition) Validate() error {
	_, err := a.Normalize()
	return err
}

// LedgerID derives the key of the ledger the addition targets.
func (a StockAddition) LedgerID() string {
	return LedgerID(a.ProductBlueprintID, a.TokenBlueprintID)
}
