package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/logger"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// scanWarnThreshold is the collection size above which model lookups, which
// have no index and scan every ledger, are logged as a warning.
const scanWarnThreshold = 1000

// LedgerRepository persists inventory ledgers in a DocumentStore, one
// document per productBlueprint/tokenBlueprint pairing.
type LedgerRepository struct {
	store port.DocumentStore
	now   func() time.Time
	logg  *logger.Logger
}

var _ port.LedgerRepository = (*LedgerRepository)(nil)

type RepositoryOption func(*LedgerRepository)

func WithClock(now func() time.Time) RepositoryOption {
	return func(r *LedgerRepository) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logg *logger.Logger) RepositoryOption {
	return func(r *LedgerRepository) {
		if logg != nil {
			r.logg = logg
		}
	}
}

func NewLedgerRepository(store port.DocumentStore, opts ...RepositoryOption) *LedgerRepository {
	r := &LedgerRepository{
		store: store,
		now:   time.Now,
		logg:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LedgerRepository) Upsert(ctx context.Context, tokenBlueprintID, productBlueprintID, modelID string, productIDs []string) (domain.InventoryLedger, error) {
	add, err := domain.StockAddition{
		TokenBlueprintID:   tokenBlueprintID,
		ProductBlueprintID: productBlueprintID,
		ModelID:            modelID,
		ProductIDs:         productIDs,
	}.Normalize()
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	id := add.LedgerID()
	ctx = r.logg.WithLedgerID(ctx, id)

	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		now := r.now().UTC()

		doc, err := tx.Get(ctx, id)
		if errors.Is(err, port.ErrDocumentNotFound) {
			created, err := domain.NewInventoryLedger(add, now)
			if err != nil {
				return err
			}
			return tx.Set(ctx, id, encodeLedger(created))
		}
		if err != nil {
			return err
		}

		current, err := decodeLedger(doc)
		if err != nil {
			return err
		}
		if err := current.CheckPair(add.ProductBlueprintID, add.TokenBlueprintID); err != nil {
			return err
		}
		adoptIdentity(&current, id, add.TokenBlueprintID, add.ProductBlueprintID)

		if current.AddProducts(add.ModelID, add.ProductIDs) {
			r.logg.Debug(r.logg.WithModelID(ctx, add.ModelID), "model added to ledger")
		}
		current.UpdatedAt = now

		return tx.Set(ctx, id, encodeLedger(domain.Normalize(current)))
	})
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *LedgerRepository) ApplyReservation(ctx context.Context, res domain.Reservation) (domain.InventoryLedger, error) {
	res, err := res.Normalize()
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		doc, err := tx.Get(ctx, res.LedgerID)
		if errors.Is(err, port.ErrDocumentNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		current, err := decodeLedger(doc)
		if err != nil {
			return err
		}
		if err := current.ApplyReservation(res); err != nil {
			return err
		}
		current.UpdatedAt = r.now().UTC()

		return tx.Set(ctx, res.LedgerID, encodeLedger(domain.Normalize(current)))
	})
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	return r.GetByID(ctx, res.LedgerID)
}

func (r *LedgerRepository) GetByID(ctx context.Context, id string) (domain.InventoryLedger, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InventoryLedger{}, domain.ErrInvalidLedgerID
	}

	doc, err := r.store.Get(ctx, id)
	if errors.Is(err, port.ErrDocumentNotFound) {
		return domain.InventoryLedger{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.InventoryLedger{}, err
	}
	return decodeLedger(doc)
}

func (r *LedgerRepository) GetByPair(ctx context.Context, productBlueprintID, tokenBlueprintID string) (domain.InventoryLedger, error) {
	if strings.TrimSpace(productBlueprintID) == "" {
		return domain.InventoryLedger{}, domain.ErrInvalidProductBlueprintID
	}
	if strings.TrimSpace(tokenBlueprintID) == "" {
		return domain.InventoryLedger{}, domain.ErrInvalidTokenBlueprintID
	}
	l, err := r.GetByID(ctx, domain.LedgerID(productBlueprintID, tokenBlueprintID))
	if err != nil {
		return domain.InventoryLedger{}, err
	}
	if err := l.CheckPair(productBlueprintID, tokenBlueprintID); err != nil {
		return domain.InventoryLedger{}, err
	}
	return l, nil
}

func (r *LedgerRepository) Create(ctx context.Context, l domain.InventoryLedger) (domain.InventoryLedger, error) {
	l = domain.Normalize(l)
	if err := l.Validate(); err != nil {
		return domain.InventoryLedger{}, err
	}

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		doc, err := tx.Get(ctx, l.ID)
		if err == nil {
			stored, err := decodeLedger(doc)
			if err != nil {
				return err
			}
			if err := stored.CheckPair(l.ProductBlueprintID, l.TokenBlueprintID); err != nil {
				return err
			}
			return domain.ErrAlreadyExists
		}
		if !errors.Is(err, port.ErrDocumentNotFound) {
			return err
		}

		now := r.now().UTC()
		created := l
		if created.CreatedAt.IsZero() {
			created.CreatedAt = now
		}
		created.UpdatedAt = now
		return tx.Set(ctx, l.ID, encodeLedger(created))
	})
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	return r.GetByID(ctx, l.ID)
}

// Update replaces a stored ledger. CreatedAt is kept from the stored version.
func (r *LedgerRepository) Update(ctx context.Context, l domain.InventoryLedger) (domain.InventoryLedger, error) {
	l = domain.Normalize(l)
	if err := l.Validate(); err != nil {
		return domain.InventoryLedger{}, err
	}

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		doc, err := tx.Get(ctx, l.ID)
		if errors.Is(err, port.ErrDocumentNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		stored, err := decodeLedger(doc)
		if err != nil {
			return err
		}
		if err := stored.CheckPair(l.ProductBlueprintID, l.TokenBlueprintID); err != nil {
			return err
		}

		updated := l
		updated.CreatedAt = stored.CreatedAt
		updated.UpdatedAt = r.now().UTC()
		return tx.Set(ctx, l.ID, encodeLedger(domain.Normalize(updated)))
	})
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	return r.GetByID(ctx, l.ID)
}

func (r *LedgerRepository) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidLedgerID
	}

	err := r.store.Delete(ctx, id)
	if errors.Is(err, port.ErrDocumentNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	r.logg.Info(r.logg.WithLedgerID(ctx, id), "ledger deleted")
	return nil
}

func (r *LedgerRepository) ListByTokenBlueprintID(ctx context.Context, tokenBlueprintID string) ([]domain.InventoryLedger, error) {
	tokenBlueprintID = strings.TrimSpace(tokenBlueprintID)
	if tokenBlueprintID == "" {
		return nil, domain.ErrInvalidTokenBlueprintID
	}

	docs, err := r.store.Where(ctx, port.FieldTokenBlueprintID, tokenBlueprintID)
	if err != nil {
		return nil, err
	}
	return decodeLedgers(docs, nil)
}

func (r *LedgerRepository) ListByProductBlueprintID(ctx context.Context, productBlueprintID string) ([]domain.InventoryLedger, error) {
	productBlueprintID = strings.TrimSpace(productBlueprintID)
	if productBlueprintID == "" {
		return nil, domain.ErrInvalidProductBlueprintID
	}

	docs, err := r.store.Where(ctx, port.FieldProductBlueprintID, productBlueprintID)
	if err != nil {
		return nil, err
	}
	return decodeLedgers(docs, nil)
}

// ListByModelID has no index to use: it reads the whole collection and keeps
// the ledgers holding stock for modelID. The cost grows with the collection;
// a model-to-ledger lookup table is the replacement once that matters.
func (r *LedgerRepository) ListByModelID(ctx context.Context, modelID string) ([]domain.InventoryLedger, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, domain.ErrInvalidModelID
	}

	docs, err := r.store.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) > scanWarnThreshold {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"model_id":  modelID,
			"scanned":   len(docs),
			"threshold": scanWarnThreshold,
		}), "model lookup scanned the whole ledger collection")
	}
	return decodeLedgers(docs, hasModelStock(modelID))
}

func (r *LedgerRepository) ListByTokenBlueprintIDAndModelID(ctx context.Context, tokenBlueprintID, modelID string) ([]domain.InventoryLedger, error) {
	tokenBlueprintID = strings.TrimSpace(tokenBlueprintID)
	if tokenBlueprintID == "" {
		return nil, domain.ErrInvalidTokenBlueprintID
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, domain.ErrInvalidModelID
	}

	docs, err := r.store.Where(ctx, port.FieldTokenBlueprintID, tokenBlueprintID)
	if err != nil {
		return nil, err
	}
	return decodeLedgers(docs, hasModelStock(modelID))
}

func hasModelStock(modelID string) func(domain.InventoryLedger) bool {
	return func(l domain.InventoryLedger) bool {
		return domain.HasModelStock(l, modelID)
	}
}

func decodeLedgers(docs []port.Document, keep func(domain.InventoryLedger) bool) ([]domain.InventoryLedger, error) {
	out := make([]domain.InventoryLedger, 0, len(docs))
	for _, doc := range docs {
		l, err := decodeLedger(doc)
		if err != nil {
			return nil, fmt.Errorf("ledger %q: %w", documentField(doc, fieldID), err)
		}
		if keep != nil && !keep(l) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// adoptIdentity fills identity fields that older documents may lack.
func adoptIdentity(l *domain.InventoryLedger, id, tokenBlueprintID, productBlueprintID string) {
	l.ID = id
	if l.TokenBlueprintID == "" {
		l.TokenBlueprintID = tokenBlueprintID
	}
	if l.ProductBlueprintID == "" {
		l.ProductBlueprintID = productBlueprintID
	}
}
