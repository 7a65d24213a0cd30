/*
Package discount - Fiyat çözümleyici (kupon / paket indirimi)

Bir satın almaya en fazla BİR indirim kaynağı uygulanır: kupon YA DA paket.
Ücretsiz ürünlerde indirim aranmaz, kupon kullanımı düşülmez.

Kontrol sırası:
 1. Kaynak var mı?            → NotFound
 2. Aktif mi?                 → Inactive
 3. Süresi dolmuş mu?         → Expired
 4. Kullanım limiti dolu mu?  → UsageExceeded (sadece kupon)
 5. Bu ürüne uygulanır mı?    → NotApplicable
*/
package discount

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
)

var hundred = decimal.NewFromInt(100)

type SourceKind string

const (
	SourceNone   SourceKind = "none"
	SourceCoupon SourceKind = "coupon"
	SourceBundle SourceKind = "bundle"
)

type Request struct {
	Product    *models.Product
	CouponCode string
	BundleID   *uint
	// ForUpdate - kupon satırını kilitle (settlement transaction'ı içinde)
	ForUpdate bool
}

type Result struct {
	OriginalPrice  decimal.Decimal
	FinalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	Source         SourceKind
	Coupon         *models.Coupon
	Bundle         *models.Bundle
}

func (r *Result) CouponID() *uint {
	if r.Coupon == nil {
		return nil
	}
	id := r.Coupon.ID
	return &id
}

func (r *Result) BundleID() *uint {
	if r.Bundle == nil {
		return nil
	}
	id := r.Bundle.ID
	return &id
}

type Resolver struct {
	now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// WithClock - testlerde sabit zaman için
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	return &Resolver{now: now}
}

// Resolve - ürün fiyatına (varsa) kupon veya paket indirimini uygular.
// db bir transaction olabilir; kilitler o transaction'a aittir.
func (r *Resolver) Resolve(ctx context.Context, db *gorm.DB, req Request) (*Result, error) {
	if req.Product == nil {
		return nil, apperr.New(apperr.NotFound, "Ürün bulunamadı")
	}
	price := req.Product.Price
	res := &Result{OriginalPrice: price, FinalPrice: price, DiscountAmount: decimal.Zero, Source: SourceNone}

	if req.Product.IsFree() {
		return res, nil
	}

	code := strings.TrimSpace(req.CouponCode)
	if code != "" && req.BundleID != nil {
		return nil, apperr.New(apperr.Invalid, "Kupon ve paket indirimi birlikte kullanılamaz")
	}

	switch {
	case code != "":
		coupon, err := r.loadCoupon(ctx, db, code, req.ForUpdate)
		if err != nil {
			return nil, err
		}
		if err := r.checkCoupon(coupon, price); err != nil {
			return nil, err
		}
		final, err := Apply(price, coupon.DiscountType, coupon.DiscountValue)
		if err != nil {
			return nil, err
		}
		res.Source, res.Coupon, res.FinalPrice = SourceCoupon, coupon, final

	case req.BundleID != nil:
		bundle, err := loadBundle(ctx, db, *req.BundleID)
		if err != nil {
			return nil, err
		}
		if err := r.checkBundle(bundle, req.Product); err != nil {
			return nil, err
		}
		final, err := Apply(price, bundle.DiscountType, bundle.DiscountValue)
		if err != nil {
			return nil, err
		}
		res.Source, res.Bundle, res.FinalPrice = SourceBundle, bundle, final
	}

	res.DiscountAmount = price.Sub(res.FinalPrice)
	return res, nil
}

// CalculateBundle - /bundles/calculate-discount: verilen tutara paket indirimi
func (r *Resolver) CalculateBundle(ctx context.Context, db *gorm.DB, bundleID, productID uint, amount decimal.Decimal) (*Result, error) {
	var product models.Product
	if err := db.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "Ürün bulunamadı")
		}
		return nil, errors.Wrap(err, "load product")
	}
	if amount.IsNegative() {
		return nil, apperr.New(apperr.Invalid, "Tutar negatif olamaz")
	}
	if amount.IsZero() {
		amount = product.Price
	}

	bundle, err := loadBundle(ctx, db, bundleID)
	if err != nil {
		return nil, err
	}
	if err := r.checkBundle(bundle, &product); err != nil {
		return nil, err
	}
	final, err := Apply(amount, bundle.DiscountType, bundle.DiscountValue)
	if err != nil {
		return nil, err
	}
	return &Result{
		OriginalPrice:  amount,
		FinalPrice:     final,
		DiscountAmount: amount.Sub(final),
		Source:         SourceBundle,
		Bundle:         bundle,
	}, nil
}

// Apply - indirim hesabı. Sonuç 2 haneye yuvarlanır ve 0'ın altına inmez.
//
//	percentage: price * (1 - value/100)
//	fixed:      max(0, price - value)
func Apply(price decimal.Decimal, discountType string, value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, apperr.New(apperr.Invalid, "İndirim değeri negatif olamaz")
	}
	var final decimal.Decimal
	switch discountType {
	case models.DiscountPercentage:
		final = price.Mul(decimal.NewFromInt(1).Sub(value.Div(hundred)))
	case models.DiscountFixed:
		final = price.Sub(value)
	default:
		return decimal.Zero, apperr.Newf(apperr.Invalid, "Bilinmeyen indirim tipi: %s", discountType)
	}
	if final.IsNegative() {
		return decimal.Zero, nil
	}
	return final.Round(2), nil
}

func (r *Resolver) loadCoupon(ctx context.Context, db *gorm.DB, code string, forUpdate bool) (*models.Coupon, error) {
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var coupon models.Coupon
	err := q.Where("code = ?", strings.ToUpper(code)).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Kupon kodu bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load coupon")
	}
	return &coupon, nil
}

func (r *Resolver) checkCoupon(c *models.Coupon, price decimal.Decimal) error {
	if !c.Active {
		return apperr.New(apperr.Inactive, "Bu kupon artık geçerli değil")
	}
	if c.ExpiresAt != nil && r.now().After(*c.ExpiresAt) {
		return apperr.New(apperr.Expired, "Bu kuponun süresi dolmuş")
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return apperr.New(apperr.UsageExceeded, "Bu kupon kullanım limitine ulaştı")
	}
	if price.LessThan(c.MinOrderAmount) {
		return apperr.Newf(apperr.NotApplicable, "Bu kupon minimum %s TL alışverişlerde geçerlidir", c.MinOrderAmount.StringFixed(2))
	}
	return nil
}

func loadBundle(ctx context.Context, db *gorm.DB, id uint) (*models.Bundle, error) {
	var bundle models.Bundle
	err := db.WithContext(ctx).First(&bundle, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Paket bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load bundle")
	}
	return &bundle, nil
}

func (r *Resolver) checkBundle(b *models.Bundle, p *models.Product) error {
	if !b.Active {
		return apperr.New(apperr.Inactive, "Bu paket indirimi aktif değil")
	}
	if b.ExpiresAt != nil && r.now().After(*b.ExpiresAt) {
		return apperr.New(apperr.Expired, "Bu paket indiriminin süresi dolmuş")
	}
	if !bundleCovers(b, p) {
		return apperr.New(apperr.NotApplicable, "Bu paket indirimi bu ürün için geçerli değil")
	}
	return nil
}

// bundleCovers - ürün listesi varsa ona, yoksa kategoriye bakılır.
// İkisi de boşsa paket hiçbir ürünü kapsamaz.
func bundleCovers(b *models.Bundle, p *models.Product) bool {
	if len(b.ProductIDs) > 0 {
		return b.ProductIDs.Contains(p.ID)
	}
	if b.CategoryID != nil {
		return p.CategoryID != nil && *p.CategoryID == *b.CategoryID
	}
	return false
}

// ValidateRule - kupon/paket tanımlanırken indirim kuralını kontrol eder
func ValidateRule(discountType string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return apperr.New(apperr.Invalid, "İndirim değeri sıfırdan büyük olmalı")
	}
	switch discountType {
	case models.DiscountPercentage:
		if value.GreaterThan(hundred) {
			return apperr.New(apperr.Invalid, "Yüzde indirim 100'den büyük olamaz")
		}
	case models.DiscountFixed:
	default:
		return apperr.Newf(apperr.Invalid, "Bilinmeyen indirim tipi: %s", discountType)
	}
	return nil
}
