package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/auth"
	"digitalstore-backend/pkg/config"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/payment"
	"digitalstore-backend/pkg/settings"
	"digitalstore-backend/pkg/testutil"
)

const (
	secret      = "test-secret"
	merchantKey = "anahtar"
	salt        = "tuz"
)

type env struct {
	app  *fiber.App
	db   *gorm.DB
	rec  *events.Recorder
	disp *events.Dispatcher
	user *models.User
}

func newEnv(t *testing.T, store settings.MapStore) *env {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &events.Recorder{}
	disp := events.NewDispatcher(rec, zerolog.Nop())
	cfg := config.Default("payment-service")
	svc := payment.NewService(db, store, ledger.NewMutator(db), disp, zerolog.Nop(), providers(cfg)...)

	app := httpx.NewApp("payment-service-test", zerolog.Nop())
	registerRoutes(app, &handlers{payments: svc, frontendURL: "http://magaza.test", log: zerolog.Nop()}, secret)
	return &env{app: app, db: db, rec: rec, disp: disp, user: testutil.CreateUser(t, db, "yukleme@example.com")}
}

func paytrStore() settings.MapStore {
	return settings.MapStore{
		settings.KeyPayTREnabled:    "true",
		settings.KeyPayTRMerchantID: "123456",
		settings.KeyPayTRKey:        merchantKey,
		settings.KeyPayTRSalt:       salt,
		settings.KeyPaparaEnabled:   "true",
		settings.KeyPaparaAPIKey:    "papara-key",
	}
}

func (e *env) pendingPayment(t *testing.T, provider, ref, amount string) {
	t.Helper()
	p := models.Payment{Reference: ref, Provider: provider, UserID: e.user.ID, Amount: testutil.Money(amount), Status: models.StatusPending}
	if err := e.db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
}

func postForm(t *testing.T, app *fiber.App, path string, form url.Values) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header.Get("Location")
}

func paytrForm(oid, status, total, key string) url.Values {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(oid + salt + status + total))
	return url.Values{
		"merchant_oid": {oid},
		"status":       {status},
		"total_amount": {total},
		"hash":         {base64.StdEncoding.EncodeToString(mac.Sum(nil))},
	}
}

func TestPayTRCallbackEndpoint(t *testing.T) {
	e := newEnv(t, paytrStore())
	e.pendingPayment(t, models.ProviderPayTR, "abc123", "50")

	status, body, _ := postForm(t, e.app, "/payment/paytr/callback", paytrForm("abc123", "success", "5000", "yanlis"))
	if status != fiber.StatusBadRequest || body != "PAYTR notification failed: bad hash" {
		t.Errorf("bad hash = %d %q", status, body)
	}

	for i := 0; i < 2; i++ {
		status, body, _ = postForm(t, e.app, "/payment/paytr/callback", paytrForm("abc123", "success", "5000", merchantKey))
		if status != fiber.StatusOK || body != "OK" {
			t.Fatalf("attempt %d = %d %q", i, status, body)
		}
	}
	e.disp.Wait()

	if b := testutil.Reload[models.User](t, e.db, e.user.ID).Balance; !b.Equal(testutil.Money("50")) {
		t.Errorf("balance = %s, want 50", b)
	}
	if n := len(e.rec.OfType(events.PaymentCompleted)); n != 1 {
		t.Errorf("payment.completed events = %d, want 1", n)
	}

	status, _, _ = postForm(t, e.app, "/payment/paytr/callback", paytrForm("yok", "success", "5000", merchantKey))
	if status != fiber.StatusBadRequest {
		t.Errorf("unknown reference status = %d", status)
	}
}

func TestPaparaCallbackEndpoint(t *testing.T) {
	e := newEnv(t, paytrStore())
	e.pendingPayment(t, models.ProviderPapara, "pp-ref", "75")

	status, body := testutil.DoJSON(t, e.app, fiber.MethodPost, "/payment/papara/callback", "", fiber.Map{"id": "pp-1", "referenceId": "pp-ref", "status": 1, "amount": 75})
	if status != fiber.StatusOK || body["success"] != true {
		t.Fatalf("callback = %d %v", status, body)
	}
	if b := testutil.Reload[models.User](t, e.db, e.user.ID).Balance; !b.Equal(testutil.Money("75")) {
		t.Errorf("balance = %s, want 75", b)
	}

	status, _ = testutil.DoJSON(t, e.app, fiber.MethodPost, "/payment/papara/callback", "", fiber.Map{"status": 1})
	if status != fiber.StatusBadRequest {
		t.Errorf("missing reference status = %d", status)
	}
}

func TestIyzicoCallbackRedirectsOnFailure(t *testing.T) {
	e := newEnv(t, paytrStore())
	status, _, location := postForm(t, e.app, "/payment/iyzico/callback", url.Values{})
	if status != fiber.StatusFound || location != "http://magaza.test/payment/fail" {
		t.Errorf("redirect = %d %q", status, location)
	}
}

func TestCreatePaymentEndpoint(t *testing.T) {
	e := newEnv(t, settings.MapStore{})
	tok, err := auth.IssueToken(secret, e.user.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	status, body := testutil.DoJSON(t, e.app, fiber.MethodPost, "/payment/create", tok, fiber.Map{"provider": "paytr", "amount": "100"})
	if status != fiber.StatusServiceUnavailable || body["code"] != "not_configured" {
		t.Errorf("not configured = %d %v", status, body)
	}
	if status, _ := testutil.DoJSON(t, e.app, fiber.MethodPost, "/payment/create", "", fiber.Map{"provider": "paytr", "amount": "100"}); status != fiber.StatusUnauthorized {
		t.Errorf("no token status = %d", status)
	}
	var n int64
	e.db.Model(&models.Payment{}).Count(&n)
	if n != 0 {
		t.Errorf("payments = %d, want 0", n)
	}

	status, body = testutil.DoJSON(t, e.app, fiber.MethodGet, "/payment/providers", "", nil)
	if status != fiber.StatusOK || len(body["providers"].([]interface{})) != 3 {
		t.Errorf("providers = %d %v", status, body)
	}
}

func TestGetPaymentOwnerOnly(t *testing.T) {
	e := newEnv(t, paytrStore())
	e.pendingPayment(t, models.ProviderPayTR, "sahip1", "10")
	other := testutil.CreateUser(t, e.db, "baska@example.com")

	ownerTok, _ := auth.IssueToken(secret, e.user.ID, time.Hour)
	otherTok, _ := auth.IssueToken(secret, other.ID, time.Hour)

	if status, body := testutil.DoJSON(t, e.app, fiber.MethodGet, "/payment/sahip1", ownerTok, nil); status != fiber.StatusOK || body["reference"] != "sahip1" {
		t.Errorf("owner = %d %v", status, body)
	}
	if status, _ := testutil.DoJSON(t, e.app, fiber.MethodGet, "/payment/sahip1", otherTok, nil); status != fiber.StatusNotFound {
		t.Errorf("other = %d, want 404", status)
	}
	status, body := testutil.DoJSON(t, e.app, fiber.MethodGet, "/payment/me", ownerTok, nil)
	if status != fiber.StatusOK || len(body["payments"].([]interface{})) != 1 {
		t.Errorf("list = %d %v", status, body)
	}
}
