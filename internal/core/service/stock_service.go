package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/logger"
	"github.com/rl1809/inventory-ledger/internal/metrics"
	"github.com/rl1809/inventory-ledger/internal/port"
)

var ErrEmptyFilter = errors.New("at least one of tokenBlueprintId, productBlueprintId or modelId is required")

// Filter selects ledgers. Empty fields are ignored.
type Filter struct {
	TokenBlueprintID   string
	ProductBlueprintID string
	ModelID            string
}

type StockService struct {
	repo    port.LedgerRepository
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

func NewStockService(repo port.LedgerRepository, logg *logger.Logger, m *metrics.LedgerMetrics) *StockService {
	if logg == nil {
		logg = logger.Nop()
	}
	return &StockService{repo: repo, logg: logg, metrics: m}
}

// AddStock records newly minted products for one model.
func (s *StockService) AddStock(ctx context.Context, add domain.StockAddition) (domain.InventoryLedger, error) {
	start := time.Now()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"ledger_id": add.LedgerID(),
		"model_id":  strings.TrimSpace(add.ModelID),
	})

	l, err := s.repo.Upsert(ctx, add.TokenBlueprintID, add.ProductBlueprintID, add.ModelID, add.ProductIDs)
	s.record(ctx, "add_stock", start, err)
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	s.metrics.AddProducts(len(domain.NormalizeIDs(add.ProductIDs)))
	s.logg.Info(s.logg.WithField(ctx, "accumulation", l.Stock[strings.TrimSpace(add.ModelID)].Accumulation), "stock added")
	return l, nil
}

// Reserve holds quantity units of a model for an order, replacing any
// previous reservation of that order on the model.
func (s *StockService) Reserve(ctx context.Context, ledgerID, modelID, orderID string, quantity int) (domain.InventoryLedger, error) {
	if quantity <= 0 {
		return domain.InventoryLedger{}, domain.ErrInvalidQuantity
	}
	return s.applyReservation(ctx, "reserve", domain.Reservation{
		LedgerID: ledgerID,
		ModelID:  modelID,
		OrderID:  orderID,
		Quantity: quantity,
	})
}

// Release drops an order's reservation on a model.
func (s *StockService) Release(ctx context.Context, ledgerID, modelID, orderID string) (domain.InventoryLedger, error) {
	return s.applyReservation(ctx, "release", domain.Reservation{
		LedgerID: ledgerID,
		ModelID:  modelID,
		OrderID:  orderID,
	})
}

func (s *StockService) applyReservation(ctx context.Context, op string, res domain.Reservation) (domain.InventoryLedger, error) {
	start := time.Now()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"ledger_id": strings.TrimSpace(res.LedgerID),
		"model_id":  strings.TrimSpace(res.ModelID),
		"order_id":  strings.TrimSpace(res.OrderID),
	})

	l, err := s.repo.ApplyReservation(ctx, res)
	s.record(ctx, op, start, err)
	if err != nil {
		return domain.InventoryLedger{}, err
	}
	return l, nil
}

func (s *StockService) Get(ctx context.Context, ledgerID string) (domain.InventoryLedger, error) {
	start := time.Now()
	l, err := s.repo.GetByID(ctx, ledgerID)
	s.record(ctx, "get", start, err)
	return l, err
}

// Find routes a filter to the cheapest repository query. A product plus
// token filter resolves to at most one ledger through its derived key.
func (s *StockService) Find(ctx context.Context, f Filter) ([]domain.InventoryLedger, error) {
	start := time.Now()
	out, err := s.find(ctx, Filter{
		TokenBlueprintID:   strings.TrimSpace(f.TokenBlueprintID),
		ProductBlueprintID: strings.TrimSpace(f.ProductBlueprintID),
		ModelID:            strings.TrimSpace(f.ModelID),
	})
	s.record(ctx, "find", start, err)
	return out, err
}

func (s *StockService) find(ctx context.Context, f Filter) ([]domain.InventoryLedger, error) {
	switch {
	case f.ProductBlueprintID != "" && f.TokenBlueprintID != "":
		l, err := s.repo.GetByPair(ctx, f.ProductBlueprintID, f.TokenBlueprintID)
		// A key held by another pair means this pair has no ledger.
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrLedgerIDCollision) {
			return []domain.InventoryLedger{}, nil
		}
		if err != nil {
			return nil, err
		}
		if f.ModelID != "" && !domain.HasModelStock(l, f.ModelID) {
			return []domain.InventoryLedger{}, nil
		}
		return []domain.InventoryLedger{l}, nil

	case f.TokenBlueprintID != "" && f.ModelID != "":
		return s.repo.ListByTokenBlueprintIDAndModelID(ctx, f.TokenBlueprintID, f.ModelID)

	case f.TokenBlueprintID != "":
		return s.repo.ListByTokenBlueprintID(ctx, f.TokenBlueprintID)

	case f.ProductBlueprintID != "":
		ledgers, err := s.repo.ListByProductBlueprintID(ctx, f.ProductBlueprintID)
		if err != nil || f.ModelID == "" {
			return ledgers, err
		}
		out := ledgers[:0]
		for _, l := range ledgers {
			if domain.HasModelStock(l, f.ModelID) {
				out = append(out, l)
			}
		}
		return out, nil

	case f.ModelID != "":
		return s.repo.ListByModelID(ctx, f.ModelID)

	default:
		return nil, ErrEmptyFilter
	}
}

func (s *StockService) record(ctx context.Context, op string, start time.Time, err error) {
	outcome := outcomeOf(err)
	s.metrics.Observe(op, outcome, time.Since(start))

	switch outcome {
	case "ok", "invalid", "not_found", "exists":
		if err != nil {
			s.logg.Debug(s.logg.WithField(ctx, "op", op), err.Error())
		}
	default:
		s.logg.Error(s.logg.WithField(ctx, "op", op), "ledger operation failed", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrLedgerIDCollision):
		return "exists"
	case errors.Is(err, domain.ErrInvalidLedgerID),
		errors.Is(err, domain.ErrInvalidTokenBlueprintID),
		errors.Is(err, domain.ErrInvalidProductBlueprintID),
		errors.Is(err, domain.ErrInvalidModelID),
		errors.Is(err, domain.ErrInvalidProducts),
		errors.Is(err, domain.ErrInvalidOrderID),
		errors.Is(err, domain.ErrModelNotStocked),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, ErrEmptyFilter):
		return "invalid"
	case errors.Is(err, port.ErrTxConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
