package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/search"
)

type orderIndex interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
	Count(ctx context.Context) (int64, error)
	SyncFromDB(ctx context.Context, db *gorm.DB) (int, error)
}

type handlers struct {
	index orderIndex
	db    *gorm.DB
}

func registerRoutes(app *fiber.App, h *handlers, secret string) {
	authed := app.Group("/search", auth.Middleware(secret))
	authed.Get("/orders/me", h.myOrders)

	admin := authed.Group("", auth.RequireAdmin(h.db))
	admin.Get("/orders", h.searchOrders)
	admin.Post("/sync", h.sync)
	admin.Get("/stats", h.stats)
}

// GET /search/orders/me?q=office - kullanıcı sadece kendi siparişlerinde arar
func (h *handlers) myOrders(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	q := queryFrom(c)
	q.UserID = userID
	return h.respond(c, q)
}

// GET /search/orders?q=ORD2025&status=completed&user_id=3
func (h *handlers) searchOrders(c *fiber.Ctx) error {
	q := queryFrom(c)
	if id := c.QueryInt("user_id", 0); id > 0 {
		q.UserID = uint(id)
	}
	return h.respond(c, q)
}

func (h *handlers) respond(c *fiber.Ctx, q search.Query) error {
	res, err := h.index.Search(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"orders":     res.Orders,
		"pagination": httpx.Pagination(res.Page, res.Limit, res.TotalItems),
	})
}

// POST /search/sync - tüm siparişleri yeniden indeksler
func (h *handlers) sync(c *fiber.Ctx) error {
	n, err := h.index.SyncFromDB(c.UserContext(), h.db)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Senkronizasyon tamamlandı", "count": n})
}

func (h *handlers) stats(c *fiber.Ctx) error {
	n, err := h.index.Count(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"index": search.IndexName, "total_orders": n})
}

func queryFrom(c *fiber.Ctx) search.Query {
	return search.Query{
		Text:   c.Query("q"),
		Status: c.Query("status"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	}
}
