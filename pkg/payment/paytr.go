package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settings"
)

const paytrAPI = "https://www.paytr.com/odeme/api/get-token"

type PayTRConfig struct {
	// Boşsa canlı PayTR adresi
	APIURL  string
	OKURL   string
	FailURL string
}

// PayTR - iframe API. merchant_oid = Payment.Reference
type PayTR struct {
	cfg PayTRConfig
}

func NewPayTR(cfg PayTRConfig) *PayTR {
	if cfg.APIURL == "" {
		cfg.APIURL = paytrAPI
	}
	return &PayTR{cfg: cfg}
}

func (p *PayTR) Name() string { return models.ProviderPayTR }

func (p *PayTR) Enabled(cfg *settings.Snapshot) bool {
	return cfg.PayTR.Enabled && cfg.PayTR.Configured()
}

type paytrTokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

func (p *PayTR) CreateSession(ctx context.Context, cfg *settings.Snapshot, pay *models.Payment, c Customer) (*Session, error) {
	conf := cfg.PayTR

	basket, err := json.Marshal([][]interface{}{{"Bakiye Yükleme", pay.Amount.StringFixed(2), 1}})
	if err != nil {
		return nil, errors.Wrap(err, "encode basket")
	}
	userBasket := base64.StdEncoding.EncodeToString(basket)
	amount := strconv.FormatInt(kurus(pay.Amount), 10)
	testMode := "0"
	if conf.TestMode {
		testMode = "1"
	}
	const (
		noInstallment  = "1"
		maxInstallment = "0"
		currency       = "TL"
	)
	ip := c.IP
	if ip == "" {
		ip = "127.0.0.1"
	}

	hashStr := conf.MerchantID + ip + pay.Reference + c.Email + amount + userBasket +
		noInstallment + maxInstallment + currency + testMode
	token := paytrSign(hashStr+conf.Salt, conf.MerchantKey)

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	for k, v := range map[string]string{
		"merchant_id":       conf.MerchantID,
		"user_ip":           ip,
		"merchant_oid":      pay.Reference,
		"email":             c.Email,
		"payment_amount":    amount,
		"paytr_token":       token,
		"user_basket":       userBasket,
		"debug_on":          testMode,
		"no_installment":    noInstallment,
		"max_installment":   maxInstallment,
		"user_name":         orDefault(c.Name, c.Email),
		"user_address":      orDefault(c.Address, "Dijital teslimat"),
		"user_phone":        orDefault(c.Phone, "05000000000"),
		"merchant_ok_url":   p.cfg.OKURL,
		"merchant_fail_url": p.cfg.FailURL,
		"timeout_limit":     "30",
		"currency":          currency,
		"test_mode":         testMode,
	} {
		args.Set(k, v)
	}

	var resp paytrTokenResponse
	if err := post(p.cfg.APIURL, nil, fiber.MIMEApplicationForm, args.QueryString(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, errors.Errorf("paytr get-token: %s", resp.Reason)
	}
	return &Session{
		Token:       resp.Token,
		RedirectURL: "https://www.paytr.com/odeme/guvenli/" + resp.Token,
	}, nil
}

// ParseCallback - hash = base64(HMAC-SHA256(merchant_oid + salt + status + total_amount, merchant_key))
func (p *PayTR) ParseCallback(_ context.Context, cfg *settings.Snapshot, cb Callback) (*Verdict, error) {
	conf := cfg.PayTR
	if !conf.Configured() {
		return nil, apperr.New(apperr.NotConfigured, "PayTR yapılandırılmamış")
	}

	oid := cb.Form["merchant_oid"]
	status := cb.Form["status"]
	total := cb.Form["total_amount"]
	expected := paytrSign(oid+conf.Salt+status+total, conf.MerchantKey)
	if !hmac.Equal([]byte(expected), []byte(cb.Form["hash"])) {
		return nil, apperr.New(apperr.InvalidSignature, "PAYTR notification failed: bad hash")
	}

	v := &Verdict{Reference: oid, Status: models.StatusFailed}
	if status == "success" {
		v.Status = models.StatusCompleted
		if amt, err := fromKurus(total); err == nil {
			v.Amount.Decimal, v.Amount.Valid = amt, true
		}
	} else {
		v.Reason = strings.TrimSpace(cb.Form["failed_reason_code"] + " " + cb.Form["failed_reason_msg"])
	}
	return v, nil
}

func paytrSign(data, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
