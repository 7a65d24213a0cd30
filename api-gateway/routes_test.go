package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"digitalstore-backend/pkg/config"
	"digitalstore-backend/pkg/httpx"
)

func upstream(t *testing.T, name string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		io.WriteString(w, r.Method+" "+r.URL.RequestURI())
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestGatewayRouting(t *testing.T) {
	upstreams := map[string]string{}
	for name := range config.Default("api-gateway").Upstreams {
		upstreams[name] = upstream(t, name)
	}
	app := httpx.NewApp("api-gateway-test", zerolog.Nop())
	if err := registerRoutes(app, upstreams); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method, path, service, target string
	}{
		{fiber.MethodPost, "/api/orders", "order-service", "POST /orders"},
		{fiber.MethodGet, "/api/orders/user/me?page=2", "order-service", "GET /orders/user/me?page=2"},
		{fiber.MethodPost, "/api/coupons/validate", "order-service", "POST /coupons/validate"},
		{fiber.MethodGet, "/api/coupons/3/stats", "coupon-service", "GET /coupons/3/stats"},
		{fiber.MethodPost, "/api/bundles/calculate-discount", "order-service", "POST /bundles/calculate-discount"},
		{fiber.MethodPut, "/api/bundles/4", "coupon-service", "PUT /bundles/4"},
		{fiber.MethodPost, "/api/payment/paytr/callback", "payment-service", "POST /payment/paytr/callback"},
		{fiber.MethodGet, "/api/products?category_id=2&page=1", "product-service", "GET /products?category_id=2&page=1"},
		{fiber.MethodGet, "/api/wallet/balance", "wallet-service", "GET /wallet/balance"},
		{fiber.MethodPost, "/api/admin/referrals/9/approve", "wallet-service", "POST /admin/referrals/9/approve"},
		{fiber.MethodGet, "/api/search/orders?q=office", "search-service", "GET /search/orders?q=office"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil), -1)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if got := resp.Header.Get("X-Upstream"); got != tt.service {
				t.Errorf("upstream = %q, want %q", got, tt.service)
			}
			if string(body) != tt.target {
				t.Errorf("target = %q, want %q", body, tt.target)
			}
		})
	}
}

func TestGatewayUnknownService(t *testing.T) {
	app := fiber.New()
	if err := registerRoutes(app, map[string]string{"order-service": "http://localhost:3004"}); err == nil {
		t.Error("missing upstream should fail")
	}
}
