package port

import (
	"context"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

type LedgerRepository interface {
	// Upsert unions productIDs into the model's product set of the ledger
	// derived from the two blueprint ids, creating the ledger when absent.
	Upsert(ctx context.Context, tokenBlueprintID, productBlueprintID, modelID string, productIDs []string) (domain.InventoryLedger, error)

	// ApplyReservation sets or clears one order's reservation on a model.
	ApplyReservation(ctx context.Context, r domain.Reservation) (domain.InventoryLedger, error)

	GetByID(ctx context.Context, id string) (domain.InventoryLedger, error)
	GetByPair(ctx context.Context, productBlueprintID, tokenBlueprintID string) (domain.InventoryLedger, error)

	Create(ctx context.Context, l domain.InventoryLedger) (domain.InventoryLedger, error)
	Update(ctx context.Context, l domain.InventoryLedger) (domain.InventoryLedger, error)
	Delete(ctx context.Context, id string) error

	ListByTokenBlueprintID(ctx context.Context, tokenBlueprintID string) ([]domain.InventoryLedger, error)
	ListByProductBlueprintID(ctx context.Context, productBlueprintID string) ([]domain.InventoryLedger, error)

	// ListByModelID scans the whole collection.
	ListByModelID(ctx context.Context, modelID string) ([]domain.InventoryLedger, error)
	ListByTokenBlueprintIDAndModelID(ctx context.Context, tokenBlueprintID, modelID string) ([]domain.InventoryLedger, error)
}
