package main

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/referral"
)

// SetBalanceRequest - admin bakiye düzeltmesi. Fark ledger'a yazılır.
type SetBalanceRequest struct {
	Balance   decimal.Decimal `json:"balance"`
	Note      string          `json:"note"`
	IsRevenue bool            `json:"is_revenue"`
	IsExpense bool            `json:"is_expense"`
}

type RedeemRequest struct {
	Token string `json:"token"`
}

type AdminReferralRequest struct {
	ReferrerID uint   `json:"referrer_id"`
	ReferredID uint   `json:"referred_id"`
	Note       string `json:"note"`
}

type handlers struct {
	ledger      *ledger.Mutator
	referrals   *referral.Engine
	frontendURL string
}

func registerRoutes(app *fiber.App, h *handlers, db *gorm.DB, secret string) {
	authed := app.Group("", auth.Middleware(secret))

	authed.Get("/wallet/balance", h.balance)
	authed.Get("/wallet/transactions", h.transactions)

	authed.Post("/referrals/link", h.referralLink)
	authed.Post("/referrals/redeem", h.redeem)
	authed.Get("/referrals", h.myReferrals)

	admin := authed.Group("/admin", auth.RequireAdmin(db))
	admin.Post("/users/:id/balance", h.setBalance)
	admin.Post("/referrals", h.addReferral)
	admin.Post("/referrals/:id/approve", h.approve)
	admin.Post("/referrals/:id/reject", h.reject)
}

// GET /wallet/balance
func (h *handlers) balance(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	rec, err := h.ledger.Reconcile(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"balance":    rec.Balance.StringFixed(2),
		"ledger_sum": rec.LedgerSum.StringFixed(2),
		"balanced":   rec.Balanced(),
	})
}

// GET /wallet/transactions?page=1&limit=20
func (h *handlers) transactions(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	page, err := h.ledger.History(c.UserContext(), userID, c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"transactions": page.Items,
		"pagination":   httpx.Pagination(page.Page, page.Limit, page.TotalItems),
	})
}

// POST /referrals/link - paylaşılabilir davet linki
func (h *handlers) referralLink(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	token, err := h.referrals.IssueLinkToken(userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"token": token, "link": h.frontendURL + "/register?ref=" + token})
}

// POST /referrals/redeem - davet edilen kullanıcı çağırır
func (h *handlers) redeem(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	var req RedeemRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return httpx.BadRequest("Davet kodu gerekli")
	}
	ref, err := h.referrals.RedeemLink(c.UserContext(), strings.TrimSpace(req.Token), userID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Davet kaydedildi", "referral": ref})
}

// GET /referrals
func (h *handlers) myReferrals(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	list, err := h.referrals.ListByReferrer(c.UserContext(), userID)
	if err != nil {
		return err
	}
	stats, err := h.referrals.Stats(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"referrals": list, "stats": stats})
}

// POST /admin/users/:id/balance
func (h *handlers) setBalance(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return httpx.BadRequest("Geçersiz kullanıcı id")
	}
	var req SetBalanceRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}
	tx, err := h.ledger.SetBalance(c.UserContext(), ledger.SetBalanceInput{
		UserID:     uint(id),
		NewBalance: req.Balance,
		IsRevenue:  req.IsRevenue,
		IsExpense:  req.IsExpense,
		AdminID:    auth.AdminID(c),
		Note:       req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Bakiye güncellendi", "transaction": tx})
}

// POST /admin/referrals
func (h *handlers) addReferral(c *fiber.Ctx) error {
	var req AdminReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}
	meta := map[string]interface{}{"note": req.Note}
	if id := auth.AdminID(c); id != nil {
		meta["admin_id"] = *id
	}
	ref, err := h.referrals.AddReferral(c.UserContext(), req.ReferrerID, req.ReferredID, referral.SourceAdmin, meta)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Referans eklendi", "referral": ref})
}

// POST /admin/referrals/:id/approve
func (h *handlers) approve(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return httpx.BadRequest("Geçersiz referans id")
	}
	ref, err := h.referrals.Approve(c.UserContext(), uint(id))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Referans onaylandı", "referral": ref})
}

// POST /admin/referrals/:id/reject - verilmiş kredi geri alınmaz
func (h *handlers) reject(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return httpx.BadRequest("Geçersiz referans id")
	}
	ref, err := h.referrals.Reject(c.UserContext(), uint(id))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Referans reddedildi", "referral": ref})
}
