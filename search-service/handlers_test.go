package main

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/search"
	"digitalstore-backend/pkg/testutil"
)

const secret = "test-secret"

type fakeIndex struct {
	queries []search.Query
	synced  int
}

func (f *fakeIndex) Search(_ context.Context, q search.Query) (*search.Result, error) {
	f.queries = append(f.queries, q)
	return &search.Result{
		Orders:     []search.OrderDocument{{OrderID: 1, OrderNumber: "ORD20250101120000123456", UserID: q.UserID}},
		TotalItems: 1,
		Page:       1,
		Limit:      20,
	}, nil
}

func (f *fakeIndex) Count(context.Context) (int64, error) { return 42, nil }

func (f *fakeIndex) SyncFromDB(context.Context, *gorm.DB) (int, error) {
	f.synced++
	return 7, nil
}

func TestSearchRoutes(t *testing.T) {
	db := testutil.NewDB(t)
	idx := &fakeIndex{}
	app := httpx.NewApp("search-service-test", zerolog.Nop())
	registerRoutes(app, &handlers{index: idx, db: db}, secret)

	user := testutil.CreateUser(t, db, "arayan@example.com")
	admin := testutil.CreateUser(t, db, "admin@example.com")
	db.Model(admin).Update("is_admin", true)
	userTok, _ := auth.IssueToken(secret, user.ID, time.Hour)
	adminTok, _ := auth.IssueToken(secret, admin.ID, time.Hour)

	// kullanıcı user_id parametresiyle başkasının siparişlerini arayamaz
	status, body := testutil.DoJSON(t, app, fiber.MethodGet, "/search/orders/me?q=office&user_id=999", userTok, nil)
	if status != fiber.StatusOK {
		t.Fatalf("me = %d %v", status, body)
	}
	if got := idx.queries[0]; got.UserID != user.ID || got.Text != "office" {
		t.Errorf("query = %+v", got)
	}

	if status, _ := testutil.DoJSON(t, app, fiber.MethodGet, "/search/orders", userTok, nil); status != fiber.StatusForbidden {
		t.Errorf("non-admin search = %d, want 403", status)
	}

	status, _ = testutil.DoJSON(t, app, fiber.MethodGet, "/search/orders?status=completed&user_id=5", adminTok, nil)
	if status != fiber.StatusOK {
		t.Fatalf("admin search = %d", status)
	}
	if got := idx.queries[1]; got.UserID != 5 || got.Status != "completed" {
		t.Errorf("admin query = %+v", got)
	}

	status, body = testutil.DoJSON(t, app, fiber.MethodPost, "/search/sync", adminTok, nil)
	if status != fiber.StatusOK || body["count"].(float64) != 7 || idx.synced != 1 {
		t.Errorf("sync = %d %v", status, body)
	}
	status, body = testutil.DoJSON(t, app, fiber.MethodGet, "/search/stats", adminTok, nil)
	if status != fiber.StatusOK || body["total_orders"].(float64) != 42 {
		t.Errorf("stats = %d %v", status, body)
	}
}
