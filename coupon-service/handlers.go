package main

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/models"
)

// ==============================================================================
// REQUEST MODELLERİ
// ==============================================================================

/*
CouponInput: Oluşturma ve güncelleme için ortak gövde

Pointer alanlar: gönderilmeyen alan güncellenmez. GORM Updates(struct)
sıfır değerleri atladığı için "active=false" ya da "max_uses=null"
struct ile gönderilemezdi, bu yüzden map ile güncellenir.
*/
type CouponInput struct {
	Code           *string          `json:"code"`
	Description    *string          `json:"description"`
	DiscountType   *string          `json:"discount_type"`
	DiscountValue  *decimal.Decimal `json:"discount_value"`
	MinOrderAmount *decimal.Decimal `json:"min_order_amount"`
	MaxUses        *int             `json:"max_uses"`
	Unlimited      bool             `json:"unlimited"` // true ise max_uses kaldırılır
	ExpiresAt      *time.Time       `json:"expires_at"`
	Active         *bool            `json:"active"`
}

type BundleInput struct {
	Name          *string               `json:"name"`
	CategoryID    *uint                 `json:"category_id"`
	ProductIDs    *models.ProductIDList `json:"product_ids"`
	DiscountType  *string               `json:"discount_type"`
	DiscountValue *decimal.Decimal      `json:"discount_value"`
	ExpiresAt     *time.Time            `json:"expires_at"`
	Active        *bool                 `json:"active"`
}

type handlers struct {
	db  *gorm.DB
	log zerolog.Logger
}

func registerRoutes(app *fiber.App, h *handlers, secret string) {
	admin := app.Group("", auth.Middleware(secret), auth.RequireAdmin(h.db))

	admin.Get("/coupons", h.listCoupons)
	admin.Get("/coupons/:id", h.getCoupon)
	admin.Post("/coupons", h.createCoupon)
	admin.Put("/coupons/:id", h.updateCoupon)
	admin.Delete("/coupons/:id", h.deleteCoupon)
	admin.Get("/coupons/:id/stats", h.couponStats)

	admin.Get("/bundles", h.listBundles)
	admin.Post("/bundles", h.createBundle)
	admin.Put("/bundles/:id", h.updateBundle)
	admin.Delete("/bundles/:id", h.deleteBundle)
}

// --- KUPONLAR ---

// GET /coupons?page=1&limit=20&active=true
func (h *handlers) listCoupons(c *fiber.Ctx) error {
	page, limit := c.QueryInt("page", 1), c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.db.WithContext(c.UserContext()).Model(&models.Coupon{})
	if c.Query("active") == "true" {
		query = query.Where("active = ?", true)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return errors.Wrap(err, "count coupons")
	}
	var coupons []models.Coupon
	if err := query.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&coupons).Error; err != nil {
		return errors.Wrap(err, "list coupons")
	}
	return c.JSON(fiber.Map{
		"coupons":    coupons,
		"pagination": httpx.Pagination(page, limit, total),
	})
}

func (h *handlers) getCoupon(c *fiber.Ctx) error {
	coupon, err := h.loadCoupon(c)
	if err != nil {
		return err
	}
	return c.JSON(coupon)
}

// POST /coupons
func (h *handlers) createCoupon(c *fiber.Ctx) error {
	var in CouponInput
	if err := c.BodyParser(&in); err != nil {
		return httpx.BadRequest("Geçersiz veri")
	}
	if in.Code == nil || strings.TrimSpace(*in.Code) == "" || in.DiscountType == nil || in.DiscountValue == nil {
		return httpx.BadRequest("code, discount_type ve discount_value gerekli")
	}

	coupon := models.Coupon{Active: true, MinOrderAmount: decimal.Zero}
	applyCoupon(&coupon, in)
	if err := discount.ValidateRule(coupon.DiscountType, coupon.DiscountValue); err != nil {
		return err
	}

	err := h.db.WithContext(c.UserContext()).Create(&coupon).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.New(apperr.Conflict, "Bu kupon kodu zaten mevcut")
	}
	if err != nil {
		return errors.Wrap(err, "create coupon")
	}

	h.log.Info().Str("code", coupon.Code).Msg("🎫 Yeni kupon oluşturuldu")
	return c.Status(fiber.StatusCreated).JSON(coupon)
}

// PUT /coupons/:id - used_count elle değiştirilemez
func (h *handlers) updateCoupon(c *fiber.Ctx) error {
	coupon, err := h.loadCoupon(c)
	if err != nil {
		return err
	}
	var in CouponInput
	if err := c.BodyParser(&in); err != nil {
		return httpx.BadRequest("Geçersiz veri")
	}
	applyCoupon(coupon, in)
	if err := discount.ValidateRule(coupon.DiscountType, coupon.DiscountValue); err != nil {
		return err
	}

	err = h.db.WithContext(c.UserContext()).Model(coupon).Updates(map[string]interface{}{
		"code":             coupon.Code,
		"description":      coupon.Description,
		"discount_type":    coupon.DiscountType,
		"discount_value":   coupon.DiscountValue,
		"min_order_amount": coupon.MinOrderAmount,
		"max_uses":         coupon.MaxUses,
		"expires_at":       coupon.ExpiresAt,
		"active":           coupon.Active,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.New(apperr.Conflict, "Bu kupon kodu zaten mevcut")
	}
	if err != nil {
		return errors.Wrap(err, "update coupon")
	}
	return c.JSON(coupon)
}

func (h *handlers) deleteCoupon(c *fiber.Ctx) error {
	coupon, err := h.loadCoupon(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Delete(coupon).Error; err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	h.log.Info().Str("code", coupon.Code).Msg("🗑️ Kupon silindi")
	return c.JSON(fiber.Map{"message": "Kupon silindi"})
}

// GET /coupons/:id/stats
func (h *handlers) couponStats(c *fiber.Ctx) error {
	coupon, err := h.loadCoupon(c)
	if err != nil {
		return err
	}

	var discounts []decimal.Decimal
	err = h.db.WithContext(c.UserContext()).Model(&models.CouponUsage{}).
		Where("coupon_id = ?", coupon.ID).Pluck("discount", &discounts).Error
	if err != nil {
		return errors.Wrap(err, "sum coupon usage")
	}
	total := decimal.Zero
	for _, d := range discounts {
		total = total.Add(d)
	}

	out := fiber.Map{
		"code":           coupon.Code,
		"total_uses":     coupon.UsedCount,
		"max_uses":       coupon.MaxUses,
		"total_discount": total.StringFixed(2),
		"active":         coupon.Active,
	}
	// max_uses yoksa yüzde anlamsız
	if coupon.MaxUses != nil && *coupon.MaxUses > 0 {
		out["usage_percent"] = float64(coupon.UsedCount) / float64(*coupon.MaxUses) * 100
	}
	return c.JSON(out)
}

func (h *handlers) loadCoupon(c *fiber.Ctx) (*models.Coupon, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, httpx.BadRequest("Geçersiz kupon id")
	}
	var coupon models.Coupon
	err = h.db.WithContext(c.UserContext()).First(&coupon, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Kupon bulunamadı")
	}
	return &coupon, errors.Wrap(err, "load coupon")
}

func applyCoupon(c *models.Coupon, in CouponInput) {
	if in.Code != nil {
		c.Code = strings.ToUpper(strings.TrimSpace(*in.Code))
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.DiscountType != nil {
		c.DiscountType = strings.ToLower(*in.DiscountType)
	}
	if in.DiscountValue != nil {
		c.DiscountValue = *in.DiscountValue
	}
	if in.MinOrderAmount != nil {
		c.MinOrderAmount = *in.MinOrderAmount
	}
	if in.MaxUses != nil {
		c.MaxUses = in.MaxUses
	}
	if in.Unlimited {
		c.MaxUses = nil
	}
	if in.ExpiresAt != nil {
		c.ExpiresAt = in.ExpiresAt
	}
	if in.Active != nil {
		c.Active = *in.Active
	}
}

// --- PAKETLER ---

func (h *handlers) listBundles(c *fiber.Ctx) error {
	var bundles []models.Bundle
	if err := h.db.WithContext(c.UserContext()).Order("created_at DESC").Find(&bundles).Error; err != nil {
		return errors.Wrap(err, "list bundles")
	}
	return c.JSON(fiber.Map{"bundles": bundles})
}

func (h *handlers) createBundle(c *fiber.Ctx) error {
	var in BundleInput
	if err := c.BodyParser(&in); err != nil {
		return httpx.BadRequest("Geçersiz veri")
	}
	if in.Name == nil || in.DiscountType == nil || in.DiscountValue == nil {
		return httpx.BadRequest("name, discount_type ve discount_value gerekli")
	}
	bundle := models.Bundle{Active: true}
	applyBundle(&bundle, in)
	if err := discount.ValidateRule(bundle.DiscountType, bundle.DiscountValue); err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Create(&bundle).Error; err != nil {
		return errors.Wrap(err, "create bundle")
	}
	h.log.Info().Str("name", bundle.Name).Msg("📦 Yeni paket oluşturuldu")
	return c.Status(fiber.StatusCreated).JSON(bundle)
}

func (h *handlers) updateBundle(c *fiber.Ctx) error {
	bundle, err := h.loadBundle(c)
	if err != nil {
		return err
	}
	var in BundleInput
	if err := c.BodyParser(&in); err != nil {
		return httpx.BadRequest("Geçersiz veri")
	}
	applyBundle(bundle, in)
	if err := discount.ValidateRule(bundle.DiscountType, bundle.DiscountValue); err != nil {
		return err
	}
	err = h.db.WithContext(c.UserContext()).Model(bundle).Updates(map[string]interface{}{
		"name":           bundle.Name,
		"category_id":    bundle.CategoryID,
		"product_ids":    bundle.ProductIDs,
		"discount_type":  bundle.DiscountType,
		"discount_value": bundle.DiscountValue,
		"expires_at":     bundle.ExpiresAt,
		"active":         bundle.Active,
	}).Error
	if err != nil {
		return errors.Wrap(err, "update bundle")
	}
	return c.JSON(bundle)
}

func (h *handlers) deleteBundle(c *fiber.Ctx) error {
	bundle, err := h.loadBundle(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Delete(bundle).Error; err != nil {
		return errors.Wrap(err, "delete bundle")
	}
	return c.JSON(fiber.Map{"message": "Paket silindi"})
}

func (h *handlers) loadBundle(c *fiber.Ctx) (*models.Bundle, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, httpx.BadRequest("Geçersiz paket id")
	}
	var bundle models.Bundle
	err = h.db.WithContext(c.UserContext()).First(&bundle, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Paket bulunamadı")
	}
	return &bundle, errors.Wrap(err, "load bundle")
}

func applyBundle(b *models.Bundle, in BundleInput) {
	if in.Name != nil {
		b.Name = *in.Name
	}
	if in.CategoryID != nil {
		b.CategoryID = in.CategoryID
	}
	if in.ProductIDs != nil {
		b.ProductIDs = *in.ProductIDs
	}
	if in.DiscountType != nil {
		b.DiscountType = strings.ToLower(*in.DiscountType)
	}
	if in.DiscountValue != nil {
		b.DiscountValue = *in.DiscountValue
	}
	if in.ExpiresAt != nil {
		b.ExpiresAt = in.ExpiresAt
	}
	if in.Active != nil {
		b.Active = *in.Active
	}
}
