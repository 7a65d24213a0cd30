package main

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settlement"
)

// ==============================================================================
// REQUEST MODELLERİ
// ==============================================================================

// CreateOrderRequest - tutar istemciden ALINMAZ, sunucu ürün fiyatından hesaplar
type CreateOrderRequest struct {
	ProductID     uint   `json:"product_id"`
	PaymentMethod string `json:"payment_method"` // free | balance | paytr | iyzico | papara
	CouponCode    string `json:"coupon_code"`
	BundleID      *uint  `json:"bundle_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type BundleDiscountRequest struct {
	BundleID  uint            `json:"bundle_id"`
	ProductID uint            `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type ValidateCouponRequest struct {
	Code      string `json:"code"`
	ProductID uint   `json:"product_id"`
	BundleID  *uint  `json:"bundle_id"`
}

type handlers struct {
	engine *settlement.Engine
}

func registerRoutes(app *fiber.App, h *handlers, db *gorm.DB, secret string) {
	app.Post("/bundles/calculate-discount", h.calculateBundle)

	// bundan sonraki tüm route'lar token ister
	authed := app.Group("", auth.Middleware(secret))

	authed.Post("/orders", h.createOrder)
	authed.Get("/orders/user/me", h.myOrders)
	authed.Get("/orders/:id", h.getOrder)
	authed.Patch("/orders/:id/status", auth.RequireAdmin(db), h.updateStatus)

	authed.Post("/coupons/validate", h.validateCoupon)
}

// POST /orders
func (h *handlers) createOrder(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}

	order, err := h.engine.Settle(c.UserContext(), settlement.Request{
		UserID:        userID,
		ProductID:     req.ProductID,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
		BundleID:      req.BundleID,
	})
	if err != nil {
		return err
	}

	msg := "Sipariş tamamlandı"
	if order.Status == models.StatusPending {
		msg = "Sipariş oluşturuldu, ödeme bekleniyor"
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg, "order": order})
}

// GET /orders/user/me?page=1&limit=10
func (h *handlers) myOrders(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	page, err := h.engine.ListByUser(c.UserContext(), userID, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"orders":     page.Orders,
		"pagination": httpx.Pagination(page.Page, page.Limit, page.TotalItems),
	})
}

// GET /orders/:id - başkasının siparişi 404 döner (varlığı sızdırılmaz)
func (h *handlers) getOrder(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return httpx.BadRequest("Geçersiz sipariş id")
	}
	order, err := h.engine.Get(c.UserContext(), uint(id))
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return apperr.New(apperr.NotFound, "Sipariş bulunamadı")
	}
	return c.JSON(order)
}

// PATCH /orders/:id/status (admin)
func (h *handlers) updateStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return httpx.BadRequest("Geçersiz sipariş id")
	}
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}
	order, err := h.engine.Transition(c.UserContext(), uint(id), strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Sipariş durumu güncellendi", "order": order})
}

// POST /coupons/validate - önizleme, kupon kullanımı yazılmaz
func (h *handlers) validateCoupon(c *fiber.Ctx) error {
	var req ValidateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}
	if strings.TrimSpace(req.Code) == "" && req.BundleID == nil {
		return httpx.BadRequest("Kupon kodu gerekli")
	}
	res, err := h.engine.Quote(c.UserContext(), req.ProductID, req.Code, req.BundleID)
	if err != nil {
		return err
	}
	return c.JSON(discountResponse(res))
}

// POST /bundles/calculate-discount
func (h *handlers) calculateBundle(c *fiber.Ctx) error {
	var req BundleDiscountRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}
	if req.BundleID == 0 || req.ProductID == 0 {
		return httpx.BadRequest("bundle_id ve product_id gerekli")
	}
	res, err := h.engine.CalculateBundle(c.UserContext(), req.BundleID, req.ProductID, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(discountResponse(res))
}

func discountResponse(res *discount.Result) fiber.Map {
	out := fiber.Map{
		"original_amount": res.OriginalPrice.StringFixed(2),
		"discount_amount": res.DiscountAmount.StringFixed(2),
		"final_amount":    res.FinalPrice.StringFixed(2),
		"source":          res.Source,
	}
	if res.Coupon != nil {
		out["coupon_code"] = res.Coupon.Code
	}
	if res.Bundle != nil {
		out["bundle_name"] = res.Bundle.Name
	}
	return out
}
