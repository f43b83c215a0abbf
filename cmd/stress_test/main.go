package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/config"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/logger"
	"github.com/rl1809/inventory-ledger/internal/metrics"
)

const (
	totalWriters    = 50
	productsPerCall = 20
	modelCount      = 5
	reservedOrders  = 10
)

// Concurrent mints against one ledger: every writer adds a disjoint batch of
// product ids, so the final ledger must hold all of them.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "inventory-ledger-stress",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	if err := run(context.Background(), cfg, logg); err != nil {
		logg.Error(context.Background(), "stress test failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	store, closeStore, err := storage.OpenDocumentStore(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	reg := prometheus.NewRegistry()
	svc := service.NewStockService(
		storage.NewLedgerRepository(store, storage.WithLogger(logg)),
		logg,
		metrics.NewLedgerMetrics(reg),
	)

	// Fresh blueprint ids keep runs against a shared store independent.
	productBlueprintID := "pb-" + uuid.NewString()
	tokenBlueprintID := "tb-" + uuid.NewString()
	ledgerID := domain.LedgerID(productBlueprintID, tokenBlueprintID)

	expected := make(map[string]map[string]struct{}, modelCount)
	batches := make([]domain.StockAddition, totalWriters)
	for i := range batches {
		modelID := fmt.Sprintf("model-%d", i%modelCount)
		ids := make([]string, productsPerCall)
		for j := range ids {
			ids[j] = uuid.NewString()
		}
		if expected[modelID] == nil {
			expected[modelID] = make(map[string]struct{})
		}
		for _, id := range ids {
			expected[modelID][id] = struct{}{}
		}
		batches[i] = domain.StockAddition{
			TokenBlueprintID:   tokenBlueprintID,
			ProductBlueprintID: productBlueprintID,
			ModelID:            modelID,
			ProductIDs:         ids,
		}
	}

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := range batches {
		wg.Add(1)
		go func(add domain.StockAddition) {
			defer wg.Done()

			if _, err := svc.AddStock(ctx, add); err != nil {
				failCount.Add(1)
				return
			}
			successCount.Add(1)
		}(batches[i])
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Reservations racing each other on the same model.
	for i := 0; i < reservedOrders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := svc.Reserve(ctx, ledgerID, "model-0", fmt.Sprintf("order-%d", n), 1); err != nil {
				failCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	ledger, err := svc.Get(ctx, ledgerID)
	if err != nil {
		return err
	}

	missing := 0
	for modelID, ids := range expected {
		ms := ledger.Stock[modelID]
		for id := range ids {
			if _, ok := ms.Products[id]; !ok {
				missing++
			}
		}
	}
	reserved := ledger.Stock["model-0"].ReservedCount

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store Driver:     %s\n", cfg.Store.Driver)
	fmt.Printf("Ledger:           %s\n", ledgerID)
	fmt.Printf("Writers:          %d\n", totalWriters)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Models:           %d\n", len(ledger.ModelIDs))
	fmt.Printf("Missing Products: %d\n", missing)
	fmt.Printf("Reserved Units:   %d\n", reserved)
	fmt.Println("==========================================")

	if missing == 0 && successCount.Load() == totalWriters {
		fmt.Printf("PASS: all %d products present\n", totalWriters*productsPerCall)
	} else {
		fmt.Printf("FAIL: %d products lost across %d failed writes\n", missing, failCount.Load())
	}
	if reserved == reservedOrders {
		fmt.Printf("PASS: %d reservations recorded\n", reservedOrders)
	} else {
		fmt.Printf("FAIL: expected %d reserved units, got %d\n", reservedOrders, reserved)
	}

	cleanupErr := store.Delete(ctx, ledgerID)
	return multierr.Append(printOps(reg), cleanupErr)
}

func printOps(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if mf.GetName() != "ledger_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += lp.GetName() + "=" + lp.GetValue() + " "
			}
			fmt.Printf("%s%.0f\n", labels, m.GetCounter().GetValue())
		}
	}
	return nil
}
