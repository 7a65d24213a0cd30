package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/payment"
)

// CreatePaymentRequest - bakiye yükleme isteği
type CreatePaymentRequest struct {
	Provider  string          `json:"provider"` // paytr | iyzico | papara
	Amount    decimal.Decimal `json:"amount"`
	PackageID *string         `json:"package_id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	City      string          `json:"city"`
}

type handlers struct {
	payments    *payment.Service
	frontendURL string
	log         zerolog.Logger
}

func registerRoutes(app *fiber.App, h *handlers, secret string) {
	// Sağlayıcı bildirimleri token taşımaz, imza/geri sorgu ile doğrulanır
	app.Post("/payment/paytr/callback", h.paytrCallback)
	app.Post("/payment/iyzico/callback", h.iyzicoCallback)
	app.Post("/payment/papara/callback", h.paparaCallback)
	app.Get("/payment/providers", h.listProviders)

	authed := app.Group("/payment", auth.Middleware(secret))
	authed.Post("/create", h.createPayment)
	authed.Get("/me", h.myPayments)
	authed.Get("/:reference", h.getPayment)
}

// POST /payment/create
func (h *handlers) createPayment(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest("Geçersiz istek formatı")
	}

	session, err := h.payments.CreatePayment(c.UserContext(), payment.CreateRequest{
		Provider:  req.Provider,
		UserID:    userID,
		Amount:    req.Amount,
		PackageID: req.PackageID,
		Customer: payment.Customer{
			Name:    req.Name,
			Phone:   req.Phone,
			IP:      c.IP(),
			Address: req.Address,
			City:    req.City,
		},
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"provider":     session.Provider,
		"reference":    session.Reference,
		"amount":       session.Amount.StringFixed(2),
		"token":        session.Token,
		"redirect_url": session.RedirectURL,
		"content":      session.Content,
	})
}

// GET /payment/providers
func (h *handlers) listProviders(c *fiber.Ctx) error {
	list, err := h.payments.Providers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"providers": list})
}

// GET /payment/me
func (h *handlers) myPayments(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	page, err := h.payments.ListByUser(c.UserContext(), userID, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"payments":   page.Payments,
		"pagination": httpx.Pagination(page.Page, page.Limit, page.TotalItems),
	})
}

// GET /payment/:reference
func (h *handlers) getPayment(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	p, err := h.payments.Get(c.UserContext(), c.Params("reference"))
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return apperr.New(apperr.NotFound, "Ödeme bulunamadı")
	}
	return c.JSON(p)
}

// POST /payment/paytr/callback
// PayTR "OK" cevabını görene kadar bildirimi tekrar gönderir.
func (h *handlers) paytrCallback(c *fiber.Ctx) error {
	_, err := h.payments.HandleCallback(c.UserContext(), models.ProviderPayTR, payment.Callback{Form: formValues(c)})
	switch {
	case err == nil:
		return c.SendString("OK")
	case apperr.Is(err, apperr.InvalidSignature), apperr.Is(err, apperr.NotFound):
		return c.Status(fiber.StatusBadRequest).SendString(apperr.Message(err))
	default:
		return err
	}
}

// POST /payment/iyzico/callback - kullanıcının tarayıcısı buraya döner
func (h *handlers) iyzicoCallback(c *fiber.Ctx) error {
	out, err := h.payments.HandleCallback(c.UserContext(), models.ProviderIyzico, payment.Callback{Form: formValues(c)})
	if err != nil {
		h.log.Warn().Err(err).Msg("⚠️ iyzico callback işlenemedi")
		return c.Redirect(h.frontendURL + "/payment/fail")
	}
	if out.Payment.Status != models.StatusCompleted {
		return c.Redirect(h.frontendURL + "/payment/fail?reference=" + out.Payment.Reference)
	}
	return c.Redirect(h.frontendURL + "/payment/success?reference=" + out.Payment.Reference)
}

// POST /payment/papara/callback
func (h *handlers) paparaCallback(c *fiber.Ctx) error {
	if _, err := h.payments.HandleCallback(c.UserContext(), models.ProviderPapara, payment.Callback{Body: c.Body()}); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func formValues(c *fiber.Ctx) map[string]string {
	form := map[string]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		form[string(k)] = string(v)
	})
	return form
}
