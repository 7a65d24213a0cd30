package settlement

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/metrics"
	"digitalstore-backend/pkg/models"
)

type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	TotalItems int64          `json:"total_items"`
	Page       int            `json:"current_page"`
	Limit      int            `json:"per_page"`
}

func (e *Engine) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := e.db.WithContext(ctx).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Sipariş bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	return &order, nil
}

func (e *Engine) ListByUser(ctx context.Context, userID uint, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}
	out := &OrderPage{Page: page, Limit: limit}
	if err := e.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&out.TotalItems).Error; err != nil {
		return nil, errors.Wrap(err, "count orders")
	}
	err := e.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&out.Orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return out, nil
}

// Transition - durum sadece ileri gider: pending → completed | failed.
// completed'a geçişte kupon ve indirme sayacı aynı transaction'da işlenir.
func (e *Engine) Transition(ctx context.Context, orderID uint, to string) (*models.Order, error) {
	if to != models.StatusCompleted && to != models.StatusFailed {
		return nil, apperr.Newf(apperr.Invalid, "Geçersiz sipariş durumu: %s", to)
	}

	out := &settled{}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "Sipariş bulunamadı")
			}
			return errors.Wrap(err, "lock order")
		}
		if order.Status != models.StatusPending {
			return apperr.Newf(apperr.Conflict, "Sipariş durumu %s → %s değiştirilemez", order.Status, to)
		}

		updates := map[string]interface{}{"status": to}
		if to == models.StatusCompleted {
			now := time.Now()
			updates["completed_at"] = now
			order.CompletedAt = &now
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update order status")
		}
		order.Status = to
		out.order = &order

		if to != models.StatusCompleted {
			return nil
		}
		if err := tx.First(&out.user, order.UserID).Error; err != nil {
			return errors.Wrap(err, "load user")
		}
		if err := tx.First(&out.product, order.ProductID).Error; err != nil {
			return errors.Wrap(err, "load product")
		}
		if order.CouponID != nil {
			if err := discount.ConsumeCoupon(ctx, tx, *order.CouponID, order.UserID, order.ID, order.DiscountAmount); err != nil {
				return err
			}
			var coupon models.Coupon
			if err := tx.First(&coupon, *order.CouponID).Error; err == nil {
				out.coupon = &coupon
			}
		}
		return incrementDownloads(tx, order.ProductID)
	})
	if err != nil {
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues(out.order.PaymentMethod, out.order.Status).Inc()
	if to == models.StatusCompleted {
		e.events.Emit(events.NewOrderEvent(summarize(out)))
	}
	return out.order, nil
}

// Quote - satın almadan önce fiyat önizlemesi. Hiçbir satır yazılmaz ve
// kilitlenmez; settlement anında kurallar tekrar kontrol edilir.
func (e *Engine) Quote(ctx context.Context, productID uint, couponCode string, bundleID *uint) (*discount.Result, error) {
	var product models.Product
	err := e.db.WithContext(ctx).First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Ürün bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load product")
	}
	return e.resolver.Resolve(ctx, e.db, discount.Request{Product: &product, CouponCode: couponCode, BundleID: bundleID})
}

// CalculateBundle - /bundles/calculate-discount
func (e *Engine) CalculateBundle(ctx context.Context, bundleID, productID uint, amount decimal.Decimal) (*discount.Result, error) {
	return e.resolver.CalculateBundle(ctx, e.db, bundleID, productID, amount)
}
