package payment

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/metrics"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settings"
)

type CreateRequest struct {
	Provider  string
	UserID    uint
	Amount    decimal.Decimal
	PackageID *string
	Customer  Customer
}

// Outcome - callback işlendikten sonraki durum
type Outcome struct {
	Payment *models.Payment
	// Duplicate - Payment zaten sonuçlanmıştı, hiçbir şey değişmedi
	Duplicate bool
	// Ignored - sağlayıcı henüz sonuç bildirmedi (Papara status=0)
	Ignored bool
}

type ProviderStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type PaymentPage struct {
	Payments   []models.Payment `json:"payments"`
	TotalItems int64            `json:"total_items"`
	Page       int              `json:"current_page"`
	Limit      int              `json:"per_page"`
}

type Service struct {
	db        *gorm.DB
	settings  settings.Store
	ledger    *ledger.Mutator
	events    *events.Dispatcher
	log       zerolog.Logger
	providers map[string]Provider
	newRef    func() string
}

func NewService(db *gorm.DB, store settings.Store, mutator *ledger.Mutator, dispatcher *events.Dispatcher, log zerolog.Logger, providers ...Provider) *Service {
	s := &Service{
		db:        db,
		settings:  store,
		ledger:    mutator,
		events:    dispatcher,
		log:       log,
		providers: make(map[string]Provider, len(providers)),
		newRef:    NewReference,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

// NewReference - PayTR merchant_oid sadece alfanümerik kabul eder
func NewReference() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Service) provider(name string) (Provider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, apperr.Newf(apperr.Invalid, "Bilinmeyen ödeme sağlayıcısı: %s", name)
	}
	return p, nil
}

func (s *Service) IsEnabled(ctx context.Context, name string) (bool, error) {
	p, err := s.provider(name)
	if err != nil {
		return false, err
	}
	cfg, err := settings.Load(ctx, s.settings)
	if err != nil {
		return false, err
	}
	return p.Enabled(cfg), nil
}

func (s *Service) Providers(ctx context.Context) ([]ProviderStatus, error) {
	cfg, err := settings.Load(ctx, s.settings)
	if err != nil {
		return nil, err
	}
	out := make([]ProviderStatus, 0, len(s.providers))
	for name, p := range s.providers {
		out = append(out, ProviderStatus{Name: name, Enabled: p.Enabled(cfg)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreatePayment - pending Payment satırını yazar, sonra sağlayıcıdan oturum açar.
// Sağlayıcı kapalıysa ya da anahtarlar eksikse hiçbir satır yazılmaz.
func (s *Service) CreatePayment(ctx context.Context, req CreateRequest) (*Session, error) {
	p, err := s.provider(req.Provider)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.New(apperr.Invalid, "Tutar sıfırdan büyük olmalı")
	}
	req.Amount = req.Amount.Round(2)

	cfg, err := settings.Load(ctx, s.settings)
	if err != nil {
		return nil, err
	}
	if !p.Enabled(cfg) {
		metrics.PaymentsCreatedTotal.WithLabelValues(p.Name(), "not_configured").Inc()
		return nil, apperr.Newf(apperr.NotConfigured, "%s ödemeleri şu an kullanılamıyor", p.Name())
	}

	var user models.User
	err = s.db.WithContext(ctx).First(&user, req.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Kullanıcı bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}
	customer := req.Customer
	customer.UserID = user.ID
	if customer.Email == "" {
		customer.Email = user.Email
	}
	if customer.Name == "" {
		customer.Name = user.Username
	}

	payment := &models.Payment{
		Reference: s.newRef(),
		Provider:  p.Name(),
		UserID:    user.ID,
		Amount:    req.Amount,
		Status:    models.StatusPending,
		PackageID: req.PackageID,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	session, err := p.CreateSession(ctx, cfg, payment, customer)
	if err != nil {
		metrics.PaymentsCreatedTotal.WithLabelValues(p.Name(), "error").Inc()
		s.log.Error().Err(err).Str("provider", p.Name()).Str("reference", payment.Reference).Msg("❌ ödeme oturumu açılamadı")
		if uerr := s.db.WithContext(ctx).Model(payment).Updates(map[string]interface{}{
			"status":         models.StatusFailed,
			"failure_reason": truncate([]byte(err.Error()), 250),
		}).Error; uerr != nil {
			s.log.Error().Err(uerr).Str("reference", payment.Reference).Msg("payment failed olarak işaretlenemedi")
		}
		return nil, apperr.Wrap(apperr.ProviderError, err, "Ödeme sağlayıcısına ulaşılamadı")
	}

	if session.Token != "" {
		if err := s.db.WithContext(ctx).Model(payment).Update("provider_token", session.Token).Error; err != nil {
			return nil, errors.Wrap(err, "store provider token")
		}
	}
	session.Provider = p.Name()
	session.Reference = payment.Reference
	session.Amount = payment.Amount

	metrics.PaymentsCreatedTotal.WithLabelValues(p.Name(), "ok").Inc()
	s.log.Info().Str("provider", p.Name()).Str("reference", payment.Reference).
		Uint("user_id", user.ID).Str("amount", payment.Amount.StringFixed(2)).Msg("💳 ödeme oturumu açıldı")
	return session, nil
}

// HandleCallback - doğrulanmış callback'i Payment'a uygular. Aynı callback
// ikinci kez gelirse bakiye tekrar yüklenmez.
func (s *Service) HandleCallback(ctx context.Context, name string, cb Callback) (*Outcome, error) {
	p, err := s.provider(name)
	if err != nil {
		return nil, err
	}
	cfg, err := settings.Load(ctx, s.settings)
	if err != nil {
		return nil, err
	}

	verdict, err := p.ParseCallback(ctx, cfg, cb)
	if err != nil {
		metrics.PaymentCallbacksTotal.WithLabelValues(p.Name(), string(apperr.KindOf(err))).Inc()
		s.log.Warn().Err(err).Str("provider", p.Name()).Msg("⚠️ callback reddedildi")
		return nil, err
	}

	out := &Outcome{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := lockPayment(tx, p.Name(), verdict)
		if err != nil {
			return err
		}
		out.Payment = payment

		if payment.Status != models.StatusPending {
			out.Duplicate = true
			return nil
		}
		if verdict.Status == models.StatusPending {
			out.Ignored = true
			return nil
		}

		status, reason := verdict.Status, verdict.Reason
		if status == models.StatusCompleted && verdict.Amount.Valid && verdict.Amount.Decimal.LessThan(payment.Amount) {
			status = models.StatusFailed
			reason = "tutar uyuşmazlığı: " + verdict.Amount.Decimal.StringFixed(2)
		}

		now := time.Now()
		updates := map[string]interface{}{"status": status}
		if verdict.ProviderPaymentID != "" {
			updates["provider_payment_id"] = verdict.ProviderPaymentID
		}
		if status == models.StatusCompleted {
			updates["completed_at"] = now
		} else {
			updates["failure_reason"] = reason
		}
		if err := tx.Model(payment).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update payment")
		}
		payment.Status = status
		if status == models.StatusCompleted {
			payment.CompletedAt = &now
		} else {
			payment.FailureReason = reason
		}

		if status == models.StatusCompleted {
			_, err := s.ledger.Apply(ctx, tx, ledger.Change{
				UserID:    payment.UserID,
				Amount:    payment.Amount,
				Type:      models.TxAdd,
				Note:      payment.Provider + " ile bakiye yükleme",
				Reference: payment.Reference,
				IsRevenue: true,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.PaymentCallbacksTotal.WithLabelValues(p.Name(), string(apperr.KindOf(err))).Inc()
		return nil, err
	}

	switch {
	case out.Duplicate:
		metrics.PaymentCallbacksTotal.WithLabelValues(p.Name(), "duplicate").Inc()
		s.log.Info().Str("provider", p.Name()).Str("reference", out.Payment.Reference).
			Str("status", out.Payment.Status).Msg("callback tekrar geldi, işlem yok")
	case out.Ignored:
		metrics.PaymentCallbacksTotal.WithLabelValues(p.Name(), "ignored").Inc()
	default:
		metrics.PaymentCallbacksTotal.WithLabelValues(p.Name(), out.Payment.Status).Inc()
		s.log.Info().Str("provider", p.Name()).Str("reference", out.Payment.Reference).
			Str("status", out.Payment.Status).Msg("✅ callback işlendi")
		s.emit(out.Payment)
	}
	return out, nil
}

func lockPayment(tx *gorm.DB, provider string, v *Verdict) (*models.Payment, error) {
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("provider = ?", provider)
	switch {
	case v.Reference != "":
		q = q.Where("reference = ?", v.Reference)
	case v.Token != "":
		q = q.Where("provider_token = ?", v.Token)
	default:
		return nil, apperr.New(apperr.NotFound, "Ödeme bulunamadı")
	}

	var payment models.Payment
	err := q.First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Ödeme bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock payment")
	}
	return &payment, nil
}

func (s *Service) emit(p *models.Payment) {
	sum := events.PaymentSummary{
		Reference: p.Reference,
		Provider:  p.Provider,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Status:    p.Status,
	}
	if p.PackageID != nil {
		sum.PackageID = *p.PackageID
	}
	s.events.Emit(events.NewPaymentEvent(sum))
}

func (s *Service) Get(ctx context.Context, reference string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Ödeme bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load payment")
	}
	return &p, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uint, page, limit int) (*PaymentPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}
	out := &PaymentPage{Page: page, Limit: limit}
	q := s.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", userID)
	if err := q.Count(&out.TotalItems).Error; err != nil {
		return nil, errors.Wrap(err, "count payments")
	}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&out.Payments).Error
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return out, nil
}
