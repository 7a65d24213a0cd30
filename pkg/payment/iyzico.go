package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settings"
)

const (
	iyzicoSandboxURL = "https://sandbox-api.iyzipay.com"
	iyzicoLiveURL    = "https://api.iyzipay.com"

	iyzicoInitializePath = "/payment/iyzipay/checkoutform/initialize/auth/ecom"
	iyzicoRetrievePath   = "/payment/iyzipay/checkoutform/auth/ecom/detail"
)

type IyzicoConfig struct {
	// Boşsa iyzico_sandbox ayarına göre seçilir
	BaseURL     string
	CallbackURL string
}

// Iyzico - checkout form. Callback içeriğine güvenilmez, sonuç token ile
// iyzico'dan tekrar sorgulanır.
type Iyzico struct {
	cfg IyzicoConfig
}

func NewIyzico(cfg IyzicoConfig) *Iyzico {
	return &Iyzico{cfg: cfg}
}

func (i *Iyzico) Name() string { return models.ProviderIyzico }

func (i *Iyzico) Enabled(cfg *settings.Snapshot) bool {
	return cfg.Iyzico.Enabled && cfg.Iyzico.Configured()
}

func (i *Iyzico) baseURL(conf settings.Iyzico) string {
	switch {
	case i.cfg.BaseURL != "":
		return strings.TrimRight(i.cfg.BaseURL, "/")
	case conf.Sandbox:
		return iyzicoSandboxURL
	default:
		return iyzicoLiveURL
	}
}

type iyzicoBuyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	Email               string `json:"email"`
	IdentityNumber      string `json:"identityNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	City                string `json:"city"`
	Country             string `json:"country"`
	IP                  string `json:"ip"`
}

type iyzicoAddress struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
}

type iyzicoBasketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

type iyzicoInitRequest struct {
	Locale              string             `json:"locale"`
	ConversationID      string             `json:"conversationId"`
	Price               string             `json:"price"`
	PaidPrice           string             `json:"paidPrice"`
	Currency            string             `json:"currency"`
	BasketID            string             `json:"basketId"`
	PaymentGroup        string             `json:"paymentGroup"`
	CallbackURL         string             `json:"callbackUrl"`
	EnabledInstallments []int              `json:"enabledInstallments"`
	Buyer               iyzicoBuyer        `json:"buyer"`
	BillingAddress      iyzicoAddress      `json:"billingAddress"`
	BasketItems         []iyzicoBasketItem `json:"basketItems"`
}

type iyzicoInitResponse struct {
	Status              string `json:"status"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
	Token               string `json:"token"`
	CheckoutFormContent string `json:"checkoutFormContent"`
	PaymentPageURL      string `json:"paymentPageUrl"`
}

type iyzicoRetrieveRequest struct {
	Locale         string `json:"locale"`
	ConversationID string `json:"conversationId,omitempty"`
	Token          string `json:"token"`
}

type iyzicoRetrieveResponse struct {
	Status         string          `json:"status"`
	ErrorMessage   string          `json:"errorMessage"`
	PaymentStatus  string          `json:"paymentStatus"`
	PaymentID      string          `json:"paymentId"`
	ConversationID string          `json:"conversationId"`
	BasketID       string          `json:"basketId"`
	PaidPrice      decimal.Decimal `json:"paidPrice"`
	Token          string          `json:"token"`
}

func (i *Iyzico) CreateSession(ctx context.Context, cfg *settings.Snapshot, pay *models.Payment, c Customer) (*Session, error) {
	price := pay.Amount.StringFixed(2)
	name, surname := splitName(orDefault(c.Name, "Müşteri"))
	city := orDefault(c.City, "Istanbul")
	address := orDefault(c.Address, "Dijital teslimat")

	req := iyzicoInitRequest{
		Locale:              "tr",
		ConversationID:      pay.Reference,
		Price:               price,
		PaidPrice:           price,
		Currency:            "TRY",
		BasketID:            pay.Reference,
		PaymentGroup:        "PRODUCT",
		CallbackURL:         i.cfg.CallbackURL,
		EnabledInstallments: []int{1},
		Buyer: iyzicoBuyer{
			ID:                  strconv.FormatUint(uint64(c.UserID), 10),
			Name:                name,
			Surname:             surname,
			Email:               c.Email,
			IdentityNumber:      "11111111111",
			RegistrationAddress: address,
			City:                city,
			Country:             "Turkey",
			IP:                  orDefault(c.IP, "127.0.0.1"),
		},
		BillingAddress: iyzicoAddress{ContactName: name + " " + surname, City: city, Country: "Turkey", Address: address},
		BasketItems: []iyzicoBasketItem{{
			ID: "balance", Name: "Bakiye Yükleme", Category1: "Dijital", ItemType: "VIRTUAL", Price: price,
		}},
	}

	var resp iyzicoInitResponse
	if err := i.call(cfg.Iyzico, iyzicoInitializePath, req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, errors.Errorf("iyzico initialize: %s %s", resp.ErrorCode, resp.ErrorMessage)
	}
	return &Session{
		Token:       resp.Token,
		RedirectURL: resp.PaymentPageURL,
		Content:     resp.CheckoutFormContent,
	}, nil
}

// ParseCallback - callback'teki token ile ödeme sonucu iyzico'dan çekilir
func (i *Iyzico) ParseCallback(ctx context.Context, cfg *settings.Snapshot, cb Callback) (*Verdict, error) {
	if !cfg.Iyzico.Configured() {
		return nil, apperr.New(apperr.NotConfigured, "iyzico yapılandırılmamış")
	}
	token := cb.Form["token"]
	if token == "" {
		return nil, apperr.New(apperr.Invalid, "token eksik")
	}

	var resp iyzicoRetrieveResponse
	err := i.call(cfg.Iyzico, iyzicoRetrievePath, iyzicoRetrieveRequest{Locale: "tr", Token: token}, &resp)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderError, err, "iyzico ödeme sonucu alınamadı")
	}
	// status, sorgunun kendisinin sonucudur; ödeme kararı paymentStatus'tadır
	if resp.Status != "success" {
		return nil, apperr.New(apperr.ProviderError, "iyzico sorgusu başarısız: "+resp.ErrorMessage)
	}

	v := &Verdict{
		Reference:         resp.BasketID,
		Token:             token,
		Status:            models.StatusFailed,
		ProviderPaymentID: resp.PaymentID,
		Reason:            resp.ErrorMessage,
	}
	if v.Reference == "" {
		v.Reference = resp.ConversationID
	}
	if resp.PaymentStatus == "SUCCESS" {
		v.Status = models.StatusCompleted
		v.Reason = ""
		if resp.PaidPrice.IsPositive() {
			v.Amount.Decimal, v.Amount.Valid = resp.PaidPrice, true
		}
	}
	return v, nil
}

func (i *Iyzico) call(conf settings.Iyzico, path string, req, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode iyzico request")
	}
	rnd := strconv.FormatInt(time.Now().UnixMilli(), 10) + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	headers := map[string]string{
		"Authorization": iyzicoAuthorization(conf.APIKey, conf.SecretKey, rnd, path, body),
		"x-iyzi-rnd":    rnd,
		"Accept":        fiber.MIMEApplicationJSON,
	}
	return post(i.baseURL(conf)+path, headers, fiber.MIMEApplicationJSON, body, out)
}

// iyzicoAuthorization - IYZWSv2 imzası
func iyzicoAuthorization(apiKey, secret, rnd, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rnd + path))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))
	params := "apiKey:" + apiKey + "&randomKey:" + rnd + "&signature:" + sig
	return "IYZWSv2 " + base64.StdEncoding.EncodeToString([]byte(params))
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	idx := strings.LastIndex(full, " ")
	if idx <= 0 {
		return full, full
	}
	return full[:idx], full[idx+1:]
}
