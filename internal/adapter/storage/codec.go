package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	fieldID                 = "id"
	fieldTokenBlueprintID   = port.FieldTokenBlueprintID
	fieldProductBlueprintID = port.FieldProductBlueprintID
	fieldStock              = "stock"
	fieldModelIDs           = "modelIds"
	fieldCreatedAt          = "createdAt"
	fieldUpdatedAt          = "updatedAt"

	fieldProducts        = "products"
	fieldAccumulation    = "accumulation"
	fieldReservedByOrder = "reservedByOrder"
	fieldReservedCount   = "reservedCount"
)

// encodeLedger renders a ledger in its persisted document shape. The counters
// are written for readers of the raw collection but never read back.
func encodeLedger(l domain.InventoryLedger) port.Document {
	stock := make(map[string]any, len(l.Stock))
	for modelID, ms := range l.Stock {
		products := make(map[string]any, len(ms.Products))
		for id := range ms.Products {
			products[id] = true
		}
		reserved := make(map[string]any, len(ms.ReservedByOrder))
		for orderID, qty := range ms.ReservedByOrder {
			reserved[orderID] = qty
		}
		stock[modelID] = map[string]any{
			fieldProducts:        products,
			fieldAccumulation:    ms.Accumulation,
			fieldReservedByOrder: reserved,
			fieldReservedCount:   ms.ReservedCount,
		}
	}

	modelIDs := make([]any, 0, len(l.ModelIDs))
	for _, id := range l.ModelIDs {
		modelIDs = append(modelIDs, id)
	}

	return port.Document{
		fieldID:                 l.ID,
		fieldTokenBlueprintID:   l.TokenBlueprintID,
		fieldProductBlueprintID: l.ProductBlueprintID,
		fieldStock:              stock,
		fieldModelIDs:           modelIDs,
		fieldCreatedAt:          l.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:          l.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeLedger parses a stored document into a normalized ledger. Documents
// written by older writers are upgraded on the fly: counters are recomputed,
// modelIds is rebuilt from the stock keys and a missing createdAt falls back
// to updatedAt.
func decodeLedger(doc port.Document) (domain.InventoryLedger, error) {
	if doc == nil {
		return domain.InventoryLedger{}, fmt.Errorf("decode ledger: empty document: %w", domain.ErrInvalidLedgerID)
	}

	l := domain.InventoryLedger{
		ID:                 asString(doc[fieldID]),
		TokenBlueprintID:   asString(doc[fieldTokenBlueprintID]),
		ProductBlueprintID: asString(doc[fieldProductBlueprintID]),
		CreatedAt:          asTime(doc[fieldCreatedAt]),
		UpdatedAt:          asTime(doc[fieldUpdatedAt]),
	}

	if raw, ok := doc[fieldStock].(map[string]any); ok {
		l.Stock = make(map[string]domain.ModelStock, len(raw))
		for modelID, v := range raw {
			l.Stock[modelID] = decodeModelStock(v)
		}
	}

	out := domain.Normalize(l)
	if out.ID == "" {
		return domain.InventoryLedger{}, fmt.Errorf("decode ledger: %w", domain.ErrInvalidLedgerID)
	}
	return out, nil
}

func decodeModelStock(v any) domain.ModelStock {
	raw, ok := v.(map[string]any)
	if !ok {
		return domain.ModelStock{}
	}

	ms := domain.ModelStock{
		Products:        make(map[string]struct{}),
		ReservedByOrder: make(map[string]int),
	}

	switch products := raw[fieldProducts].(type) {
	case map[string]any:
		// Membership is the key alone: older writers stored
		// productId -> mintAddress and the value is never interpreted.
		for id := range products {
			ms.Products[id] = struct{}{}
		}
	case []any:
		for _, id := range products {
			if s := asString(id); s != "" {
				ms.Products[s] = struct{}{}
			}
		}
	}

	if reserved, ok := raw[fieldReservedByOrder].(map[string]any); ok {
		for orderID, qty := range reserved {
			if n := asInt(qty); n > 0 {
				ms.ReservedByOrder[orderID] = n
			}
		}
	}

	return ms
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
		return parsed.UTC()
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case int64:
		return time.UnixMilli(t).UTC()
	default:
		return time.Time{}
	}
}

func marshalDocument(doc port.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

func unmarshalDocument(data []byte) (port.Document, error) {
	var doc port.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

func documentField(doc port.Document, field string) string {
	return asString(doc[field])
}

func errUnsupportedField(field string) error {
	return fmt.Errorf("filter on %q is not supported", field)
}
