package main

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/models"
)

// ProductInput - fiyat 0 ise ürün ücretsizdir (payment_method=free)
type ProductInput struct {
	Name          *string              `json:"name"`
	CategoryID    *uint                `json:"category_id"`
	Price         *decimal.Decimal     `json:"price"`
	OriginalPrice *decimal.NullDecimal `json:"original_price"`
	DiscordRoleID *string              `json:"discord_role_id"`
}

type CategoryInput struct {
	Name string `json:"name"`
}

type handlers struct {
	db  *gorm.DB
	log zerolog.Logger
}

func registerRoutes(app *fiber.App, h *handlers, secret string) {
	app.Get("/products", h.listProducts)
	app.Get("/products/:id", h.getProduct)
	app.Get("/categories", h.listCategories)

	// bundan sonrası sadece admin
	admin := app.Group("", auth.Middleware(secret), auth.RequireAdmin(h.db))
	admin.Post("/products", h.createProduct)
	admin.Put("/products/:id", h.updateProduct)
	admin.Delete("/products/:id", h.deleteProduct)
	admin.Post("/categories", h.createCategory)
}

// GET /products?page=1&limit=20&category_id=2&free=true
func (h *handlers) listProducts(c *fiber.Ctx) error {
	page, limit := c.QueryInt("page", 1), c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.db.WithContext(c.UserContext()).Model(&models.Product{})
	if id := c.QueryInt("category_id", 0); id > 0 {
		query = query.Where("category_id = ?", id)
	}
	if c.Query("free") == "true" {
		query = query.Where("price = 0")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return errors.Wrap(err, "count products")
	}
	var products []models.Product
	if err := query.Order("downloads DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&products).Error; err != nil {
		return errors.Wrap(err, "list products")
	}
	return c.JSON(fiber.Map{
		"products":   products,
		"pagination": httpx.Pagination(page, limit, total),
	})
}

func (h *handlers) getProduct(c *fiber.Ctx) error {
	product, err := h.loadProduct(c)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

func (h *handlers) createProduct(c *fiber.Ctx) error {
	var in ProductInput
	if err := c.BodyParser(&in); err != nil {
		return httpx.BadRequest("Veri hatası")
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" || in.Price == nil {
		return httpx.BadRequest("name ve price gerekli")
	}
	product := models.Product{}
	applyProduct(&product, in)
	if err := h.validate(c, &product); err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Create(&product).Error; err != nil {
		return errors.Wrap(err, "create product")
	}
	h.log.Info().Uint("product_id", product.ID).Str("name", product.Name).Msg("📦 Yeni ürün eklendi")
	return c.Status(fiber.StatusCreated).JSON(product)
}

// PUT /products/:id - downloads sayacı elle değiştirilemez
func (h *handlers) updateProduct(c *fiber.Ctx) error {
	product, err := h.loadProduct(c)
	if err != nil {
		return err
	}
	var in ProductInput
	if err := c.BodyParser(&in); err != nil {
		return httpx.BadRequest("Veri hatası")
	}
	applyProduct(product, in)
	if err := h.validate(c, product); err != nil {
		return err
	}
	err = h.db.WithContext(c.UserContext()).Model(product).Updates(map[string]interface{}{
		"name":            product.Name,
		"category_id":     product.CategoryID,
		"price":           product.Price,
		"original_price":  product.OriginalPrice,
		"discord_role_id": product.DiscordRoleID,
	}).Error
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	return c.JSON(product)
}

func (h *handlers) deleteProduct(c *fiber.Ctx) error {
	product, err := h.loadProduct(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Delete(product).Error; err != nil {
		return errors.Wrap(err, "delete product")
	}
	return c.JSON(fiber.Map{"message": "Ürün silindi"})
}

func (h *handlers) listCategories(c *fiber.Ctx) error {
	var categories []models.Category
	if err := h.db.WithContext(c.UserContext()).Order("name").Find(&categories).Error; err != nil {
		return errors.Wrap(err, "list categories")
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func (h *handlers) createCategory(c *fiber.Ctx) error {
	var in CategoryInput
	if err := c.BodyParser(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		return httpx.BadRequest("Kategori adı gerekli")
	}
	category := models.Category{Name: strings.TrimSpace(in.Name)}
	if err := h.db.WithContext(c.UserContext()).Create(&category).Error; err != nil {
		return errors.Wrap(err, "create category")
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

func (h *handlers) loadProduct(c *fiber.Ctx) (*models.Product, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, httpx.BadRequest("Geçersiz ürün id")
	}
	var product models.Product
	err = h.db.WithContext(c.UserContext()).First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Ürün bulunamadı")
	}
	return &product, errors.Wrap(err, "load product")
}

func (h *handlers) validate(c *fiber.Ctx, p *models.Product) error {
	if p.Price.IsNegative() {
		return apperr.New(apperr.Invalid, "Fiyat negatif olamaz")
	}
	p.Price = p.Price.Round(2)
	if p.CategoryID == nil {
		return nil
	}
	var n int64
	if err := h.db.WithContext(c.UserContext()).Model(&models.Category{}).Where("id = ?", *p.CategoryID).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check category")
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "Kategori bulunamadı")
	}
	return nil
}

func applyProduct(p *models.Product, in ProductInput) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.CategoryID != nil {
		p.CategoryID = in.CategoryID
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.OriginalPrice != nil {
		p.OriginalPrice = *in.OriginalPrice
	}
	if in.DiscordRoleID != nil {
		p.DiscordRoleID = *in.DiscordRoleID
	}
}
