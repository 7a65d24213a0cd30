/*
Package payment - Harici ödeme sağlayıcıları (PayTR, iyzico, Papara)

Ortak akış Service içinde bir kez yazılıdır:
  - CreatePayment: ayar kontrolü → pending Payment satırı → sağlayıcı oturumu
  - HandleCallback: sağlayıcı doğrulaması → referansla Payment bulma →
    satır kilidi → pending değilse no-op → completed + bakiye yükleme
    (tek transaction) ya da failed

Sağlayıcılar sadece kendi protokolünü bilir: oturum açma isteği ve
callback'in doğrulanıp Verdict'e çevrilmesi.
*/
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settings"
)

// Customer - sağlayıcıya gönderilen alıcı bilgileri
type Customer struct {
	UserID  uint
	Email   string
	Name    string
	Phone   string
	IP      string
	Address string
	City    string
}

// Session - frontend'in kullanıcıyı yönlendireceği ödeme oturumu
type Session struct {
	Provider    string          `json:"provider"`
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	// iyzico checkout form script'i
	Content string `json:"content,omitempty"`
}

// Callback - sağlayıcıdan gelen ham bildirim
type Callback struct {
	Form map[string]string
	Body []byte
}

// Verdict - doğrulanmış callback sonucu
type Verdict struct {
	// Reference boşsa Token ile aranır (iyzico)
	Reference         string
	Token             string
	Status            string // completed | failed | pending
	ProviderPaymentID string
	// Sağlayıcının bildirdiği tutar, bilinmiyorsa Valid=false
	Amount decimal.NullDecimal
	Reason string
}

type Provider interface {
	Name() string
	// Enabled - aktif VE anahtarları girilmiş mi
	Enabled(cfg *settings.Snapshot) bool
	CreateSession(ctx context.Context, cfg *settings.Snapshot, p *models.Payment, c Customer) (*Session, error)
	ParseCallback(ctx context.Context, cfg *settings.Snapshot, cb Callback) (*Verdict, error)
}

// kurus - 12.34 TL → 1234
func kurus(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromKurus(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d.Div(decimal.NewFromInt(100)).Round(2), nil
}
