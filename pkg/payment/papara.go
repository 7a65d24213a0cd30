package payment

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settings"
)

const (
	paparaTestURL = "https://merchant-api.test.papara.com"
	paparaLiveURL = "https://merchant-api.papara.com"
)

// Papara webhook status değerleri
const (
	paparaPending   = 0
	paparaCompleted = 1
)

type PaparaConfig struct {
	// Boşsa papara_sandbox ayarına göre seçilir
	BaseURL         string
	NotificationURL string
	RedirectURL     string
}

// Papara - webhook imzası yok, body'deki status'e güvenilir
type Papara struct {
	cfg PaparaConfig
}

func NewPapara(cfg PaparaConfig) *Papara {
	return &Papara{cfg: cfg}
}

func (p *Papara) Name() string { return models.ProviderPapara }

func (p *Papara) Enabled(cfg *settings.Snapshot) bool {
	return cfg.Papara.Enabled && cfg.Papara.Configured()
}

func (p *Papara) baseURL(conf settings.Papara) string {
	switch {
	case p.cfg.BaseURL != "":
		return strings.TrimRight(p.cfg.BaseURL, "/")
	case conf.Sandbox:
		return paparaTestURL
	default:
		return paparaLiveURL
	}
}

type paparaCreateRequest struct {
	Amount           json.Number `json:"amount"`
	ReferenceID      string      `json:"referenceId"`
	OrderDescription string      `json:"orderDescription"`
	NotificationURL  string      `json:"notificationUrl"`
	RedirectURL      string      `json:"redirectUrl"`
}

type paparaCreateResponse struct {
	Succeeded bool `json:"succeeded"`
	Data      struct {
		ID         string `json:"id"`
		PaymentURL string `json:"paymentUrl"`
	} `json:"data"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type paparaWebhook struct {
	ID          string          `json:"id"`
	ReferenceID string          `json:"referenceId"`
	Status      int             `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
}

func (p *Papara) CreateSession(ctx context.Context, cfg *settings.Snapshot, pay *models.Payment, c Customer) (*Session, error) {
	body, err := json.Marshal(paparaCreateRequest{
		Amount:           json.Number(pay.Amount.StringFixed(2)),
		ReferenceID:      pay.Reference,
		OrderDescription: "Bakiye Yükleme",
		NotificationURL:  p.cfg.NotificationURL,
		RedirectURL:      p.cfg.RedirectURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode papara request")
	}

	var resp paparaCreateResponse
	headers := map[string]string{"ApiKey": cfg.Papara.APIKey}
	if err := post(p.baseURL(cfg.Papara)+"/payments", headers, fiber.MIMEApplicationJSON, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Succeeded {
		return nil, errors.Errorf("papara create payment: %d %s", resp.Error.Code, resp.Error.Message)
	}
	return &Session{Token: resp.Data.ID, RedirectURL: resp.Data.PaymentURL}, nil
}

func (p *Papara) ParseCallback(_ context.Context, _ *settings.Snapshot, cb Callback) (*Verdict, error) {
	var hook paparaWebhook
	if err := json.Unmarshal(cb.Body, &hook); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, err, "Geçersiz Papara bildirimi")
	}
	if hook.ReferenceID == "" {
		return nil, apperr.New(apperr.Invalid, "referenceId eksik")
	}

	v := &Verdict{Reference: hook.ReferenceID, ProviderPaymentID: hook.ID}
	switch hook.Status {
	case paparaCompleted:
		v.Status = models.StatusCompleted
		if hook.Amount.IsPositive() {
			v.Amount.Decimal, v.Amount.Valid = hook.Amount, true
		}
	case paparaPending:
		v.Status = models.StatusPending
	default:
		v.Status = models.StatusFailed
		v.Reason = "papara status " + strconv.Itoa(hook.Status)
	}
	return v, nil
}
