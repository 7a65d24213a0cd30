/*
Package models - Veritabanı modelleri

Para alanlarının hepsi decimal.Decimal (float64 değil) ve veritabanında
decimal(12,2) olarak tutulur.

User.Balance ve Coupon.UsedCount dışındaki satırlar ya append-only ya da
sadece status alanı değişen kayıtlardır.
*/
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ödeme yöntemleri
const (
	PaymentMethodFree    = "free"
	PaymentMethodBalance = "balance"
)

// Sağlayıcılar
const (
	ProviderPayTR  = "paytr"
	ProviderIyzico = "iyzico"
	ProviderPapara = "papara"
)

// Order ve Payment durumları
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// İndirim tipleri
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Ledger hareket tipleri
const (
	TxAdd      = "add"
	TxSubtract = "subtract"
)

// Referans durumları
const (
	ReferralApproved = "approved"
	ReferralRejected = "rejected"
)

type User struct {
	gorm.Model
	Username  string          `json:"username" gorm:"size:100"`
	Email     string          `json:"email" gorm:"uniqueIndex;size:255"`
	DiscordID string          `json:"discord_id" gorm:"size:64"`
	IsAdmin   bool            `json:"is_admin"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(12,2);not null;default:0"`
}

type Category struct {
	gorm.Model
	Name string `json:"name" gorm:"size:100"`
}

type Product struct {
	gorm.Model
	Name          string              `json:"name" gorm:"size:200"`
	CategoryID    *uint               `json:"category_id" gorm:"index"`
	Price         decimal.Decimal     `json:"price" gorm:"type:decimal(12,2);not null;default:0"` // 0 = ücretsiz
	OriginalPrice decimal.NullDecimal `json:"original_price" gorm:"type:decimal(12,2)"`
	Downloads     int64               `json:"downloads" gorm:"not null;default:0"`
	DiscordRoleID string              `json:"discord_role_id" gorm:"size:64"`
}

// IsFree - fiyatı 0 olan ürün
func (p *Product) IsFree() bool {
	return p.Price.IsZero()
}

type Coupon struct {
	gorm.Model
	Code           string          `json:"code" gorm:"uniqueIndex;size:50"` // her zaman BÜYÜK harf
	Description    string          `json:"description"`
	DiscountType   string          `json:"discount_type" gorm:"size:20"` // percentage | fixed
	DiscountValue  decimal.Decimal `json:"discount_value" gorm:"type:decimal(12,2);not null"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount" gorm:"type:decimal(12,2);not null;default:0"`
	MaxUses        *int            `json:"max_uses"` // nil = sınırsız
	UsedCount      int             `json:"used_count" gorm:"not null;default:0"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	Active         bool            `json:"active"`
}

type CouponUsage struct {
	gorm.Model
	CouponID uint            `json:"coupon_id" gorm:"index"`
	UserID   uint            `json:"user_id" gorm:"index"`
	OrderID  uint            `json:"order_id" gorm:"index"`
	Discount decimal.Decimal `json:"discount" gorm:"type:decimal(12,2);not null"`
}

// Bundle - kategori ya da ürün listesine bağlı indirim kuralı.
// ProductIDs doluysa kategori dikkate alınmaz.
type Bundle struct {
	gorm.Model
	Name          string          `json:"name" gorm:"size:200"`
	CategoryID    *uint           `json:"category_id"`
	ProductIDs    ProductIDList   `json:"product_ids"`
	DiscountType  string          `json:"discount_type" gorm:"size:20"`
	DiscountValue decimal.Decimal `json:"discount_value" gorm:"type:decimal(12,2);not null"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	Active        bool            `json:"active"`
}

type Order struct {
	gorm.Model
	OrderNumber    string          `json:"order_number" gorm:"uniqueIndex;size:40"`
	UserID         uint            `json:"user_id" gorm:"index"`
	ProductID      uint            `json:"product_id" gorm:"index"`
	CouponID       *uint           `json:"coupon_id"`
	BundleID       *uint           `json:"bundle_id"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	OriginalAmount decimal.Decimal `json:"original_amount" gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `json:"discount_amount" gorm:"type:decimal(12,2);not null"`
	PaymentMethod  string          `json:"payment_method" gorm:"size:20"`
	Status         string          `json:"status" gorm:"size:20;index"`
	CompletedAt    *time.Time      `json:"completed_at"`
}

// Payment - site dışı ödeme oturumu. Reference sağlayıcıya giden tekil
// anahtardır (PayTR merchant_oid, iyzico conversationId, Papara referenceId).
type Payment struct {
	gorm.Model
	Reference         string          `json:"reference" gorm:"uniqueIndex;size:64"`
	Provider          string          `json:"provider" gorm:"size:20;index"`
	UserID            uint            `json:"user_id" gorm:"index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Status            string          `json:"status" gorm:"size:20;index"`
	PackageID         *string         `json:"package_id" gorm:"size:64"`
	ProviderToken     string          `json:"-" gorm:"size:255;index"`
	ProviderPaymentID string          `json:"provider_payment_id" gorm:"size:128"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at"`
}

// BalanceTransaction - değiştirilemez ledger kaydı. Silinmez, güncellenmez;
// bu yüzden gorm.Model (soft delete) kullanılmaz.
type BalanceTransaction struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	CreatedAt       time.Time       `json:"created_at"`
	UserID          uint            `json:"user_id" gorm:"index;not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"` // işaretli
	Type            string          `json:"type" gorm:"size:10"`
	PreviousBalance decimal.Decimal `json:"previous_balance" gorm:"type:decimal(12,2);not null"`
	NewBalance      decimal.Decimal `json:"new_balance" gorm:"type:decimal(12,2);not null"`
	IsRevenue       bool            `json:"is_revenue"`
	IsExpense       bool            `json:"is_expense"`
	Note            string          `json:"note"`
	AdminID         *uint           `json:"admin_id"`
	Reference       string          `json:"reference" gorm:"size:64;index"`
}

type Referral struct {
	gorm.Model
	ReferrerID     uint            `json:"referrer_id" gorm:"uniqueIndex:idx_referral_pair;not null"`
	ReferredID     uint            `json:"referred_id" gorm:"uniqueIndex:idx_referral_pair;not null"`
	Status         string          `json:"status" gorm:"size:20"`
	CreditGiven    bool            `json:"credit_given"`
	ReferrerCredit decimal.Decimal `json:"referrer_credit" gorm:"type:decimal(12,2);not null;default:0"`
	ReferredCredit decimal.Decimal `json:"referred_credit" gorm:"type:decimal(12,2);not null;default:0"`
	Source         string          `json:"source" gorm:"size:20"`
	Metadata       datatypes.JSON  `json:"metadata"`
	CreditedAt     *time.Time      `json:"credited_at"`
}

type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:100"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All - AutoMigrate sırası
func All() []interface{} {
	return []interface{}{
		&User{}, &Category{}, &Product{}, &Coupon{}, &CouponUsage{}, &Bundle{},
		&Order{}, &Payment{}, &BalanceTransaction{}, &Referral{}, &Setting{},
	}
}
