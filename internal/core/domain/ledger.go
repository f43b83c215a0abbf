package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidLedgerID           = errors.New("ledger: invalid id")
	ErrInvalidTokenBlueprintID   = errors.New("ledger: invalid tokenBlueprintId")
	ErrInvalidProductBlueprintID = errors.New("ledger: invalid productBlueprintId")
	ErrInvalidModelID            = errors.New("ledger: invalid modelId")
	ErrInvalidProducts           = errors.New("ledger: invalid products")
	ErrNotFound                  = errors.New("ledger: not found")
	ErrAlreadyExists             = errors.New("ledger: already exists")
	// ErrLedgerIDCollision reports that the derived id is already held by a
	// ledger of another productBlueprint/tokenBlueprint pair.
	ErrLedgerIDCollision = errors.New("ledger: id held by another blueprint pair")
)

// ModelStock is the stock of one model (size/color variant) inside a ledger.
// Accumulation and ReservedCount are derived and recomputed by Normalize.
type ModelStock struct {
	Products        map[string]struct{}
	Accumulation    int
	ReservedByOrder map[string]int
	ReservedCount   int
}

// IsEmpty reports whether the entry carries neither products nor reservations.
func (s ModelStock) IsEmpty() bool {
	for id := range s.Products {
		if strings.TrimSpace(id) != "" {
			return false
		}
	}
	for id, qty := range s.ReservedByOrder {
		if strings.TrimSpace(id) != "" && qty > 0 {
			return false
		}
	}
	return true
}

// ProductIDs returns the product set in ascending order.
func (s ModelStock) ProductIDs() []string {
	ids := make([]string, 0, len(s.Products))
	for id := range s.Products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InventoryLedger is the stock aggregate of one productBlueprint/tokenBlueprint
// pairing, covering every model of that pairing.
type InventoryLedger struct {
	ID                 string
	TokenBlueprintID   string
	ProductBlueprintID string
	Stock              map[string]ModelStock
	ModelIDs           []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewInventoryLedger builds the first version of a ledger from a stock addition.
func NewInventoryLedger(a StockAddition, now time.Time) (InventoryLedger, error) {
	a, err := a.Normalize()
	if err != nil {
		return InventoryLedger{}, err
	}

	ts := now.UTC()
	l := InventoryLedger{
		ID:                 a.LedgerID(),
		TokenBlueprintID:   a.TokenBlueprintID,
		ProductBlueprintID: a.ProductBlueprintID,
		Stock:              make(map[string]ModelStock, 1),
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
	l.AddProducts(a.ModelID, a.ProductIDs)

	return Normalize(l), nil
}

// AddProducts unions productIDs into the product set of modelID, creating the
// model entry when needed. Reservations are left untouched. It reports
// whether the model was new to the ledger.
func (l *InventoryLedger) AddProducts(modelID string, productIDs []string) bool {
	modelID = strings.TrimSpace(modelID)
	if l.Stock == nil {
		l.Stock = make(map[string]ModelStock)
	}

	ms, existed := l.Stock[modelID]
	isNew := !existed || ms.IsEmpty()
	products := make(map[string]struct{}, len(ms.Products)+len(productIDs))
	for id := range ms.Products {
		products[id] = struct{}{}
	}
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		products[id] = struct{}{}
	}
	ms.Products = products
	l.Stock[modelID] = ms

	return isNew
}

// CheckPair fails with ErrLedgerIDCollision when the ledger records blueprint
// ids other than the given ones. Blank stored ids are accepted, since older
// documents may lack them.
func (l InventoryLedger) CheckPair(productBlueprintID, tokenBlueprintID string) error {
	product := strings.TrimSpace(l.ProductBlueprintID)
	token := strings.TrimSpace(l.TokenBlueprintID)
	if product != "" && product != strings.TrimSpace(productBlueprintID) {
		return fmt.Errorf("%w: %s belongs to productBlueprintId=%q tokenBlueprintId=%q", ErrLedgerIDCollision, l.ID, product, token)
	}
	if token != "" && token != strings.TrimSpace(tokenBlueprintID) {
		return fmt.Errorf("%w: %s belongs to productBlueprintId=%q tokenBlueprintId=%q", ErrLedgerIDCollision, l.ID, product, token)
	}
	return nil
}

// Validate checks the identifiers of a ledger that is about to be written.
func (l InventoryLedger) Validate() error {
	if strings.TrimSpace(l.TokenBlueprintID) == "" {
		return ErrInvalidTokenBlueprintID
	}
	if strings.TrimSpace(l.ProductBlueprintID) == "" {
		return ErrInvalidProductBlueprintID
	}
	id := strings.TrimSpace(l.ID)
	if id == "" || id != LedgerID(l.ProductBlueprintID, l.TokenBlueprintID) {
		return ErrInvalidLedgerID
	}
	for modelID, ms := range l.Stock {
		if strings.TrimSpace(modelID) == "" {
			return ErrInvalidModelID
		}
		for pid := range ms.Products {
			if strings.TrimSpace(pid) == "" {
				return ErrInvalidProducts
			}
		}
	}
	return nil
}

// Normalize returns a copy of l with trimmed identifiers, recomputed counters,
// empty model entries dropped and ModelIDs regenerated from the Stock keys.
func Normalize(l InventoryLedger) InventoryLedger {
	out := InventoryLedger{
		ID:                 strings.TrimSpace(l.ID),
		TokenBlueprintID:   strings.TrimSpace(l.TokenBlueprintID),
		ProductBlueprintID: strings.TrimSpace(l.ProductBlueprintID),
		Stock:              make(map[string]ModelStock, len(l.Stock)),
		CreatedAt:          l.CreatedAt.UTC(),
		UpdatedAt:          l.UpdatedAt.UTC(),
	}
	if out.ID == "" && out.TokenBlueprintID != "" && out.ProductBlueprintID != "" {
		out.ID = LedgerID(out.ProductBlueprintID, out.TokenBlueprintID)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = out.UpdatedAt
	}

	for rawID, ms := range l.Stock {
		modelID := strings.TrimSpace(rawID)
		if modelID == "" {
			continue
		}
		n := normalizeModelStock(ms)
		if prev, ok := out.Stock[modelID]; ok {
			n = mergeModelStock(prev, n)
		}
		if n.IsEmpty() {
			continue
		}
		out.Stock[modelID] = n
	}

	out.ModelIDs = make([]string, 0, len(out.Stock))
	for modelID := range out.Stock {
		out.ModelIDs = append(out.ModelIDs, modelID)
	}
	sort.Strings(out.ModelIDs)

	return out
}

// HasModelStock reports whether modelID exists in the ledger, meaning it holds
// at least one product or one positive reservation.
func HasModelStock(l InventoryLedger, modelID string) bool {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return false
	}
	ms, ok := l.Stock[modelID]
	return ok && !ms.IsEmpty()
}

// NormalizeIDs trims, drops blanks, dedupes and sorts raw identifiers.
func NormalizeIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeModelStock(ms ModelStock) ModelStock {
	out := ModelStock{
		Products:        make(map[string]struct{}, len(ms.Products)),
		ReservedByOrder: make(map[string]int, len(ms.ReservedByOrder)),
	}
	for id := range ms.Products {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out.Products[id] = struct{}{}
	}
	for orderID, qty := range ms.ReservedByOrder {
		orderID = strings.TrimSpace(orderID)
		if orderID == "" || qty <= 0 {
			continue
		}
		out.ReservedByOrder[orderID] += qty
	}
	recount(&out)
	return out
}

// mergeModelStock folds two entries whose keys collapse to the same model id.
func mergeModelStock(a, b ModelStock) ModelStock {
	out := ModelStock{
		Products:        make(map[string]struct{}, len(a.Products)+len(b.Products)),
		ReservedByOrder: make(map[string]int, len(a.ReservedByOrder)+len(b.ReservedByOrder)),
	}
	for _, src := range []ModelStock{a, b} {
		for id := range src.Products {
			out.Products[id] = struct{}{}
		}
		for orderID, qty := range src.ReservedByOrder {
			if qty > out.ReservedByOrder[orderID] {
				out.ReservedByOrder[orderID] = qty
			}
		}
	}
	recount(&out)
	return out
}

func recount(ms *ModelStock) {
	ms.Accumulation = len(ms.Products)
	ms.ReservedCount = 0
	for _, qty := range ms.ReservedByOrder {
		ms.ReservedCount += qty
	}
}
