//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/stocktide/api/internal/domain"
	pconfig "github.com/stocktide/api/internal/platform/config"
	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/repositories"
)

func TestRegistryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "registry-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	now := time.Now().UTC()
	product := domain.Product{
		ID:                "prd_it1",
		Name:              "Steel Hinge",
		SKU:               "HNG-100",
		Stock:             10,
		PriceRetail:       120,
		PriceWholesale:    100,
		LowStockThreshold: 5,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := registry.Products().Insert(ctx, product); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	t.Run("adjust stock", func(t *testing.T) {
		updated, err := registry.Products().AdjustStock(ctx, product.ID, -3)
		if err != nil {
			t.Fatalf("adjust stock: %v", err)
		}
		if updated.Stock != 7 {
			t.Fatalf("expected stock 7 got %d", updated.Stock)
		}

		_, err = registry.Products().AdjustStock(ctx, product.ID, -100)
		var stockErr *repositories.StockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected stock error, got %T %v", err, err)
		}
		if stockErr.Code != repositories.StockErrorInsufficientStock || stockErr.Available != 7 {
			t.Fatalf("unexpected stock error %+v", stockErr)
		}
	})

	t.Run("unit of work rolls back together", func(t *testing.T) {
		boom := errors.New("forced rollback")
		err := registry.RunInTx(ctx, func(txCtx context.Context) error {
			order := domain.Order{
				ID:          "ord_rollback",
				OrderNumber: "SO-2026-000001",
				CustomerRef: "cus_1",
				Status:      domain.OrderStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := registry.Orders().Insert(txCtx, order); err != nil {
				return err
			}
			if _, err := registry.Products().AdjustStock(txCtx, product.ID, -2); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected forced rollback error, got %v", err)
		}

		current, err := registry.Products().FindByID(ctx, product.ID)
		if err != nil {
			t.Fatalf("find product: %v", err)
		}
		if current.Stock != 7 {
			t.Fatalf("expected stock untouched at 7 got %d", current.Stock)
		}
		_, err = registry.Orders().FindByID(ctx, "ord_rollback")
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			t.Fatalf("expected order rolled back, got %v", err)
		}
	})

	t.Run("unit of work commits together", func(t *testing.T) {
		err := registry.RunInTx(ctx, func(txCtx context.Context) error {
			order := domain.Order{
				ID:          "ord_commit",
				OrderNumber: "SO-2026-000002",
				CustomerRef: "cus_1",
				Status:      domain.OrderStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := registry.Orders().Insert(txCtx, order); err != nil {
				return err
			}
			_, err := registry.Products().AdjustStock(txCtx, product.ID, -2)
			return err
		})
		if err != nil {
			t.Fatalf("run in tx: %v", err)
		}

		current, err := registry.Products().FindByID(ctx, product.ID)
		if err != nil {
			t.Fatalf("find product: %v", err)
		}
		if current.Stock != 5 {
			t.Fatalf("expected stock 5 got %d", current.Stock)
		}
		if _, err := registry.Orders().FindByID(ctx, "ord_commit"); err != nil {
			t.Fatalf("expected committed order, got %v", err)
		}
	})

	t.Run("counter issues a dense sequence under contention", func(t *testing.T) {
		const workers = 8
		results := make([]int64, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func(idx int) {
				defer wg.Done()
				value, err := registry.Counters().Next(ctx, "orders", 1)
				if err != nil {
					t.Errorf("next(%d): %v", idx, err)
					return
				}
				results[idx] = value
			}(i)
		}
		wg.Wait()

		sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
		for i, val := range results {
			if val != int64(i+1) {
				t.Fatalf("expected sequence %d at position %d, got %d", i+1, i, val)
			}
		}
	})

	t.Run("product listing pages with cursor", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			p := domain.Product{
				ID:        fmt.Sprintf("prd_page%d", i),
				Name:      fmt.Sprintf("Widget %d", i),
				SKU:       fmt.Sprintf("WDG-%03d", i),
				CreatedAt: now.Add(time.Duration(i) * time.Second),
				UpdatedAt: now.Add(time.Duration(i) * time.Second),
			}
			if err := registry.Products().Insert(ctx, p); err != nil {
				t.Fatalf("insert page product %d: %v", i, err)
			}
		}

		var seen []string
		token := ""
		for {
			page, err := registry.Products().List(ctx, repositories.ProductListFilter{
				Pagination: domain.Pagination{PageSize: 2, PageToken: token},
			})
			if err != nil {
				t.Fatalf("list products: %v", err)
			}
			for _, item := range page.Items {
				seen = append(seen, item.ID)
			}
			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
		}
		if len(seen) < 6 {
			t.Fatalf("expected at least 6 products across pages, got %v", seen)
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
