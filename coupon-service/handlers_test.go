package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/testutil"
)

const secret = "test-secret"

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, string) {
	t.Helper()
	db := testutil.NewDB(t)
	app := httpx.NewApp("coupon-service-test", zerolog.Nop())
	registerRoutes(app, &handlers{db: db, log: zerolog.Nop()}, secret)

	admin := testutil.CreateUser(t, db, "admin@example.com")
	db.Model(admin).Update("is_admin", true)
	tok, err := auth.IssueToken(secret, admin.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return app, db, tok
}

func TestCouponCRUD(t *testing.T) {
	app, db, tok := newTestApp(t)

	status, body := testutil.DoJSON(t, app, fiber.MethodPost, "/coupons", tok, fiber.Map{
		"code": " yaz25 ", "discount_type": "percentage", "discount_value": "25", "max_uses": 10,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create = %d %v", status, body)
	}
	if body["code"] != "YAZ25" || body["active"] != true {
		t.Errorf("coupon = %v", body)
	}
	id := uint(body["ID"].(float64))

	if status, body := testutil.DoJSON(t, app, fiber.MethodPost, "/coupons", tok, fiber.Map{
		"code": "YAZ25", "discount_type": "fixed", "discount_value": "10",
	}); status != fiber.StatusConflict {
		t.Errorf("duplicate code = %d %v", status, body)
	}

	path := fmt.Sprintf("/coupons/%d", id)
	if status, body := testutil.DoJSON(t, app, fiber.MethodPut, path, tok, fiber.Map{"active": false, "unlimited": true}); status != fiber.StatusOK {
		t.Fatalf("update = %d %v", status, body)
	}
	got := testutil.Reload[models.Coupon](t, db, id)
	if got.Active || got.MaxUses != nil || got.DiscountType != models.DiscountPercentage {
		t.Errorf("after update = %+v", got)
	}

	status, body = testutil.DoJSON(t, app, fiber.MethodGet, "/coupons", tok, nil)
	if status != fiber.StatusOK || len(body["coupons"].([]interface{})) != 1 {
		t.Errorf("list = %d %v", status, body)
	}
	status, body = testutil.DoJSON(t, app, fiber.MethodGet, "/coupons?active=true", tok, nil)
	if status != fiber.StatusOK || len(body["coupons"].([]interface{})) != 0 {
		t.Errorf("active list = %d %v", status, body)
	}

	if status, _ := testutil.DoJSON(t, app, fiber.MethodDelete, path, tok, nil); status != fiber.StatusOK {
		t.Errorf("delete = %d", status)
	}
	if status, _ := testutil.DoJSON(t, app, fiber.MethodGet, path, tok, nil); status != fiber.StatusNotFound {
		t.Errorf("get deleted = %d", status)
	}
}

func TestCouponRuleValidation(t *testing.T) {
	app, _, tok := newTestApp(t)
	tests := []struct {
		name string
		body fiber.Map
	}{
		{"missing code", fiber.Map{"discount_type": "fixed", "discount_value": "10"}},
		{"percentage over 100", fiber.Map{"code": "X", "discount_type": "percentage", "discount_value": "150"}},
		{"zero value", fiber.Map{"code": "Y", "discount_type": "fixed", "discount_value": "0"}},
		{"unknown type", fiber.Map{"code": "Z", "discount_type": "hediye", "discount_value": "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := testutil.DoJSON(t, app, fiber.MethodPost, "/coupons", tok, tt.body); status != fiber.StatusBadRequest {
				t.Errorf("status = %d %v", status, body)
			}
		})
	}
}

func TestCouponStats(t *testing.T) {
	app, db, tok := newTestApp(t)
	user := testutil.CreateUser(t, db, "alici@example.com")
	max := 4
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "STAT", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("15"), Active: true, MaxUses: &max})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for i := uint(1); i <= 2; i++ {
		if err := discount.ConsumeCoupon(ctx, db, coupon.ID, user.ID, i, testutil.Money("15")); err != nil {
			t.Fatal(err)
		}
	}

	status, body := testutil.DoJSON(t, app, fiber.MethodGet, fmt.Sprintf("/coupons/%d/stats", coupon.ID), tok, nil)
	if status != fiber.StatusOK {
		t.Fatalf("stats = %d", status)
	}
	if body["total_uses"].(float64) != 2 || body["total_discount"] != "30.00" || body["usage_percent"].(float64) != 50 {
		t.Errorf("stats = %v", body)
	}
}

func TestBundleCRUDAndAdminOnly(t *testing.T) {
	app, db, tok := newTestApp(t)
	user := testutil.CreateUser(t, db, "normal@example.com")
	userTok, _ := auth.IssueToken(secret, user.ID, time.Hour)

	if status, _ := testutil.DoJSON(t, app, fiber.MethodGet, "/bundles", userTok, nil); status != fiber.StatusForbidden {
		t.Errorf("non-admin = %d, want 403", status)
	}
	if status, _ := testutil.DoJSON(t, app, fiber.MethodGet, "/bundles", "", nil); status != fiber.StatusUnauthorized {
		t.Errorf("anonymous = %d, want 401", status)
	}

	status, body := testutil.DoJSON(t, app, fiber.MethodPost, "/bundles", tok, fiber.Map{
		"name": "Ofis Paketi", "product_ids": []int{3, 5}, "discount_type": "fixed", "discount_value": "40",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create = %d %v", status, body)
	}
	id := uint(body["ID"].(float64))
	got := testutil.Reload[models.Bundle](t, db, id)
	if !got.ProductIDs.Contains(5) || got.ProductIDs.Contains(4) {
		t.Errorf("product ids = %v", got.ProductIDs)
	}

	if status, _ := testutil.DoJSON(t, app, fiber.MethodPut, fmt.Sprintf("/bundles/%d", id), tok, fiber.Map{"discount_type": "percentage", "discount_value": "120"}); status != fiber.StatusBadRequest {
		t.Errorf("invalid update = %d", status)
	}
	if status, _ := testutil.DoJSON(t, app, fiber.MethodDelete, fmt.Sprintf("/bundles/%d", id), tok, nil); status != fiber.StatusOK {
		t.Errorf("delete = %d", status)
	}
}
