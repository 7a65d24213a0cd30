package main

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/pkg/errors"
)

/*
📌 ROUTE SIRASI ÖNEMLİ!

Fiber route'ları yukarıdan aşağıya eşleştirir. Daha spesifik prefix'ler
önce gelmeli: /api/coupons/validate order-service'e, /api/coupons ise
coupon-service'e gider.
*/
var routes = []struct {
	prefix  string
	service string
}{
	{"/api/coupons/validate", "order-service"},
	{"/api/bundles/calculate-discount", "order-service"},
	{"/api/orders", "order-service"},

	{"/api/coupons", "coupon-service"},
	{"/api/bundles", "coupon-service"},

	{"/api/products", "product-service"},
	{"/api/categories", "product-service"},

	{"/api/payment", "payment-service"},

	{"/api/wallet", "wallet-service"},
	{"/api/referrals", "wallet-service"},
	{"/api/admin", "wallet-service"},

	{"/api/search", "search-service"},
}

// registerRoutes - /api/xxx isteğini ilgili servisin /xxx yoluna aktarır
func registerRoutes(app *fiber.App, upstreams map[string]string) error {
	for _, r := range routes {
		base, ok := upstreams[r.service]
		if !ok || base == "" {
			return errors.Errorf("%s için adres tanımlı değil", r.service)
		}
		h := forward(strings.TrimRight(base, "/"))
		app.All(r.prefix, h)
		app.All(r.prefix+"/*", h)
	}
	return nil
}

func forward(base string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url := base + strings.TrimPrefix(c.Path(), "/api")
		// Query string'i de ekle (sayfalama, filtreleme)
		if qs := string(c.Request().URI().QueryString()); qs != "" {
			url += "?" + qs
		}
		if err := proxy.Do(c, url); err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "Servise ulaşılamadı")
		}
		return nil
	}
}
