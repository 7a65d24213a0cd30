package settings

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/apperr"
)

// Ayar anahtarları
const (
	KeyPayTREnabled    = "paytr_enabled"
	KeyPayTRMerchantID = "paytr_merchant_id"
	KeyPayTRKey        = "paytr_merchant_key"
	KeyPayTRSalt       = "paytr_merchant_salt"
	KeyPayTRTestMode   = "paytr_test_mode"

	KeyIyzicoEnabled = "iyzico_enabled"
	KeyIyzicoAPIKey  = "iyzico_api_key"
	KeyIyzicoSecret  = "iyzico_secret_key"
	KeyIyzicoSandbox = "iyzico_sandbox"

	KeyPaparaEnabled = "papara_enabled"
	KeyPaparaAPIKey  = "papara_api_key"
	KeyPaparaSandbox = "papara_sandbox"

	KeyReferralEnabled        = "referral_enabled"
	KeyReferralReferrerCredit = "referral_referrer_credit"
	KeyReferralReferredCredit = "referral_referred_credit"

	KeyDiscordWebhookURL = "discord_webhook_url"
	KeyTelegramBotToken  = "telegram_bot_token"
	KeyTelegramChatID    = "telegram_chat_id"
	KeySiteName          = "site_name"
)

type PayTR struct {
	Enabled     bool
	MerchantID  string
	MerchantKey string
	Salt        string
	TestMode    bool
}

func (p PayTR) Configured() bool {
	return p.MerchantID != "" && p.MerchantKey != "" && p.Salt != ""
}

type Iyzico struct {
	Enabled   bool
	APIKey    string
	SecretKey string
	Sandbox   bool
}

func (i Iyzico) Configured() bool {
	return i.APIKey != "" && i.SecretKey != ""
}

type Papara struct {
	Enabled bool
	APIKey  string
	Sandbox bool
}

func (p Papara) Configured() bool {
	return p.APIKey != ""
}

type Referral struct {
	Enabled        bool
	ReferrerCredit decimal.Decimal
	ReferredCredit decimal.Decimal
}

type Notify struct {
	DiscordWebhookURL string
	TelegramBotToken  string
	TelegramChatID    string
	SiteName          string
}

// Snapshot - bir işlem boyunca kullanılan tipli ayar görüntüsü
type Snapshot struct {
	PayTR    PayTR
	Iyzico   Iyzico
	Papara   Papara
	Referral Referral
	Notify   Notify
}

func Load(ctx context.Context, store Store) (*Snapshot, error) {
	raw, err := store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse - string map'i doğrular ve tipli Snapshot'a çevirir
func Parse(raw map[string]string) (*Snapshot, error) {
	p := parser{raw: raw}
	s := &Snapshot{
		PayTR: PayTR{
			Enabled:     p.boolean(KeyPayTREnabled, false),
			MerchantID:  p.str(KeyPayTRMerchantID),
			MerchantKey: p.str(KeyPayTRKey),
			Salt:        p.str(KeyPayTRSalt),
			TestMode:    p.boolean(KeyPayTRTestMode, false),
		},
		Iyzico: Iyzico{
			Enabled:   p.boolean(KeyIyzicoEnabled, false),
			APIKey:    p.str(KeyIyzicoAPIKey),
			SecretKey: p.str(KeyIyzicoSecret),
			Sandbox:   p.boolean(KeyIyzicoSandbox, true),
		},
		Papara: Papara{
			Enabled: p.boolean(KeyPaparaEnabled, false),
			APIKey:  p.str(KeyPaparaAPIKey),
			Sandbox: p.boolean(KeyPaparaSandbox, true),
		},
		Referral: Referral{
			Enabled:        p.boolean(KeyReferralEnabled, true),
			ReferrerCredit: p.money(KeyReferralReferrerCredit),
			ReferredCredit: p.money(KeyReferralReferredCredit),
		},
		Notify: Notify{
			DiscordWebhookURL: p.str(KeyDiscordWebhookURL),
			TelegramBotToken:  p.str(KeyTelegramBotToken),
			TelegramChatID:    p.str(KeyTelegramChatID),
			SiteName:          p.str(KeySiteName),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	return s, nil
}

// parser - ilk hatayı saklar, sonraki okumalar varsayılan döner
type parser struct {
	raw map[string]string
	err error
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.raw[key])
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.ToLower(p.str(key))
	switch v {
	case "":
		return def
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	if p.err == nil {
		p.err = apperr.Newf(apperr.Invalid, "%s ayarı boolean değil: %q", key, v)
	}
	return def
}

func (p *parser) money(key string) decimal.Decimal {
	v := p.str(key)
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		if p.err == nil {
			p.err = apperr.Newf(apperr.Invalid, "%s ayarı geçerli bir tutar değil: %q", key, v)
		}
		return decimal.Zero
	}
	return d
}
