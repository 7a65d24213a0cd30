/*
Package settlement - Sipariş settlement motoru

Bir satın alma denemesinin durumları:

	Requested → Priced → (Debited|Skipped) → OrderCreated
	  → [CouponConsumed] → [DownloadIncremented] → Committed

Priced'dan Committed'a kadar her adım TEK transaction içindedir; herhangi
bir hata tüm transaction'ı geri alır. Bildirimler, rol verme ve webhook'lar
commit'ten SONRA olay olarak yayınlanır.

Harici sağlayıcı (paytr/iyzico/papara) ile gelen siparişler burada sadece
niyet olarak (pending) kaydedilir; bakiye düşülmez, kupon harcanmaz.
*/
package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/metrics"
	"digitalstore-backend/pkg/models"
)

const maxOrderNumberAttempts = 3

type Request struct {
	UserID        uint
	ProductID     uint
	PaymentMethod string
	CouponCode    string
	BundleID      *uint
}

type Engine struct {
	db             *gorm.DB
	resolver       *discount.Resolver
	ledger         *ledger.Mutator
	events         *events.Dispatcher
	log            zerolog.Logger
	newOrderNumber func() string
}

func NewEngine(db *gorm.DB, resolver *discount.Resolver, mutator *ledger.Mutator, dispatcher *events.Dispatcher, log zerolog.Logger) *Engine {
	return &Engine{
		db:             db,
		resolver:       resolver,
		ledger:         mutator,
		events:         dispatcher,
		log:            log,
		newOrderNumber: NewOrderNumber,
	}
}

// isProvider - harici ödeme sağlayıcısı mı?
func isProvider(method string) bool {
	switch method {
	case models.ProviderPayTR, models.ProviderIyzico, models.ProviderPapara:
		return true
	}
	return false
}

// settled - transaction içinde toplanan, commit sonrası kullanılan bilgiler
type settled struct {
	order   *models.Order
	user    models.User
	product models.Product
	coupon  *models.Coupon
}

// Settle - satın alma denemesini tek transaction içinde sonuçlandırır
func (e *Engine) Settle(ctx context.Context, req Request) (*models.Order, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod != models.PaymentMethodFree && req.PaymentMethod != models.PaymentMethodBalance && !isProvider(req.PaymentMethod) {
		return nil, apperr.Newf(apperr.Invalid, "Geçersiz ödeme yöntemi: %s", req.PaymentMethod)
	}

	start := time.Now()
	var (
		out *settled
		err error
	)
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		out, err = e.settleOnce(ctx, req)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		e.log.Warn().Int("attempt", attempt).Msg("sipariş numarası çakıştı, tekrar deneniyor")
	}
	if err != nil {
		metrics.SettlementFailuresTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		e.log.Info().Err(err).Uint("user_id", req.UserID).Uint("product_id", req.ProductID).
			Str("method", req.PaymentMethod).Msg("settlement reddedildi")
		return nil, err
	}

	order := out.order
	metrics.SettlementDuration.WithLabelValues(order.PaymentMethod).Observe(time.Since(start).Seconds())
	metrics.SettlementsTotal.WithLabelValues(order.PaymentMethod, order.Status).Inc()
	e.log.Info().Str("order", order.OrderNumber).Str("method", order.PaymentMethod).
		Str("status", order.Status).Str("amount", order.Amount.StringFixed(2)).Msg("✅ Sipariş oluşturuldu")

	e.events.Emit(events.NewOrderEvent(summarize(out)))
	return order, nil
}

func (e *Engine) settleOnce(ctx context.Context, req Request) (*settled, error) {
	out := &settled{}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out.product, req.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "Ürün bulunamadı")
			}
			return errors.Wrap(err, "load product")
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out.user, req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "Kullanıcı bulunamadı")
			}
			return errors.Wrap(err, "load user")
		}

		// Priced
		if req.PaymentMethod == models.PaymentMethodFree && !out.product.IsFree() {
			return apperr.New(apperr.Invalid, "Bu ürün ücretsiz değil")
		}
		isFree := out.product.IsFree() || req.PaymentMethod == models.PaymentMethodFree

		price := &discount.Result{
			OriginalPrice:  out.product.Price,
			FinalPrice:     decimal.Zero,
			DiscountAmount: decimal.Zero,
			Source:         discount.SourceNone,
		}
		if !isFree {
			var err error
			price, err = e.resolver.Resolve(ctx, tx, discount.Request{
				Product:    &out.product,
				CouponCode: req.CouponCode,
				BundleID:   req.BundleID,
				ForUpdate:  true,
			})
			if err != nil {
				return err
			}
		}

		method := req.PaymentMethod
		if isFree {
			method = models.PaymentMethodFree
		}
		completed := isFree || method == models.PaymentMethodBalance

		order := &models.Order{
			OrderNumber:    e.newOrderNumber(),
			UserID:         out.user.ID,
			ProductID:      out.product.ID,
			CouponID:       price.CouponID(),
			BundleID:       price.BundleID(),
			Amount:         price.FinalPrice,
			OriginalAmount: price.OriginalPrice,
			DiscountAmount: price.DiscountAmount,
			PaymentMethod:  method,
			Status:         models.StatusPending,
		}
		if completed {
			now := time.Now()
			order.Status = models.StatusCompleted
			order.CompletedAt = &now
		}

		// Debited | Skipped
		if method == models.PaymentMethodBalance && price.FinalPrice.IsPositive() {
			if out.user.Balance.LessThan(price.FinalPrice) {
				return apperr.New(apperr.InsufficientBalance, "Yetersiz bakiye")
			}
			if _, err := e.ledger.Apply(ctx, tx, ledger.Change{
				UserID:    out.user.ID,
				Amount:    price.FinalPrice,
				Type:      models.TxSubtract,
				Note:      "Sipariş " + order.OrderNumber + " - " + out.product.Name,
				Reference: order.OrderNumber,
			}); err != nil {
				return err
			}
		}

		// OrderCreated
		if err := tx.Create(order).Error; err != nil {
			return errors.Wrap(err, "create order")
		}
		out.order = order

		if !completed {
			return nil
		}

		// CouponConsumed
		if price.Coupon != nil {
			if err := discount.ConsumeCoupon(ctx, tx, price.Coupon.ID, out.user.ID, order.ID, price.DiscountAmount); err != nil {
				return err
			}
			out.coupon = price.Coupon
		}

		// DownloadIncremented
		return incrementDownloads(tx, out.product.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func incrementDownloads(tx *gorm.DB, productID uint) error {
	return errors.Wrap(tx.Model(&models.Product{}).Where("id = ?", productID).
		UpdateColumn("downloads", gorm.Expr("downloads + 1")).Error, "increment downloads")
}

func summarize(s *settled) events.OrderSummary {
	sum := events.OrderSummary{
		OrderID:        s.order.ID,
		OrderNumber:    s.order.OrderNumber,
		UserID:         s.user.ID,
		Username:       s.user.Username,
		Email:          s.user.Email,
		DiscordID:      s.user.DiscordID,
		ProductID:      s.product.ID,
		ProductName:    s.product.Name,
		Amount:         s.order.Amount,
		OriginalAmount: s.order.OriginalAmount,
		DiscountAmount: s.order.DiscountAmount,
		PaymentMethod:  s.order.PaymentMethod,
		Status:         s.order.Status,
		IsPaid:         s.order.PaymentMethod != models.PaymentMethodFree,
		CreatedAt:      s.order.CreatedAt,
	}
	if s.coupon != nil {
		sum.CouponCode = s.coupon.Code
	}
	return sum
}
