/*
Package events - Commit sonrası olaylar

Settlement transaction'ı commit edildikten SONRA yayınlanan olaylar.
Email, Discord/Telegram bildirimi, rol verme gibi yan etkiler bu olayları
tüketen servislerde çalışır. Yayın hatası settlement'ı geri almaz.
*/
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	OrderCompleted   Type = "order.completed"
	OrderPending     Type = "order.pending"
	PaymentCompleted Type = "payment.completed"
	PaymentFailed    Type = "payment.failed"
	ReferralCredited Type = "referral.credited"
)

type OrderSummary struct {
	OrderID        uint            `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         uint            `json:"user_id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	DiscordID      string          `json:"discord_id,omitempty"`
	ProductID      uint            `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  string          `json:"payment_method"`
	Status         string          `json:"status"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	IsPaid         bool            `json:"is_paid"`
	CreatedAt      time.Time       `json:"created_at"`
}

type PaymentSummary struct {
	Reference string          `json:"reference"`
	Provider  string          `json:"provider"`
	UserID    uint            `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	PackageID string          `json:"package_id,omitempty"`
}

type ReferralSummary struct {
	ReferralID     uint            `json:"referral_id"`
	ReferrerID     uint            `json:"referrer_id"`
	ReferredID     uint            `json:"referred_id"`
	ReferrerCredit decimal.Decimal `json:"referrer_credit"`
	ReferredCredit decimal.Decimal `json:"referred_credit"`
}

type Event struct {
	ID         string           `json:"id"`
	Type       Type             `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Order      *OrderSummary    `json:"order,omitempty"`
	Payment    *PaymentSummary  `json:"payment,omitempty"`
	Referral   *ReferralSummary `json:"referral,omitempty"`
}

func newEvent(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC()}
}

func NewOrderEvent(s OrderSummary) Event {
	t := OrderCompleted
	if s.Status != "completed" {
		t = OrderPending
	}
	e := newEvent(t)
	e.Order = &s
	return e
}

func NewPaymentEvent(s PaymentSummary) Event {
	t := PaymentFailed
	if s.Status == "completed" {
		t = PaymentCompleted
	}
	e := newEvent(t)
	e.Payment = &s
	return e
}

func NewReferralEvent(s ReferralSummary) Event {
	e := newEvent(ReferralCredited)
	e.Referral = &s
	return e
}

// Publisher - olayı broker'a (veya teste) iletir
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
