/*
Package referral - Referans kredi motoru

Her (davet eden, davet edilen) çifti için en fazla bir Referral satırı
vardır. Kredi bir kez verilir: credit_given bayrağı satır kilidi altında
kontrol edilir ve iki ledger kaydıyla aynı transaction'da çevrilir.
Reddetmek verilmiş krediyi geri almaz.
*/
package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/metrics"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/settings"
)

// Referral kaynakları
const (
	SourceManual = "manual"
	SourceLink   = "link"
	SourceAdmin  = "admin"
)

type Engine struct {
	db       *gorm.DB
	settings settings.Store
	ledger   *ledger.Mutator
	events   *events.Dispatcher
	log      zerolog.Logger
	secret   []byte
	now      func() time.Time
}

func NewEngine(db *gorm.DB, store settings.Store, mutator *ledger.Mutator, dispatcher *events.Dispatcher, secret string, log zerolog.Logger) *Engine {
	return &Engine{
		db:       db,
		settings: settings.Uncached(store),
		ledger:   mutator,
		events:   dispatcher,
		log:      log,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// Grant - GiveReferralCredits sonucu
type Grant struct {
	Referral *models.Referral
	// Credited - bu çağrıda kredi verildi mi
	Credited bool
}

type Stats struct {
	Total       int64           `json:"total"`
	Credited    int64           `json:"credited"`
	TotalEarned decimal.Decimal `json:"total_earned"`
}

// AddReferral - referansı approved olarak kaydeder ve hemen kredi vermeyi dener.
// Kredi adımı hata verirse referans kayıtlı kalır, admin onayı tekrar dener.
func (e *Engine) AddReferral(ctx context.Context, referrerID, referredID uint, source string, metadata map[string]interface{}) (*models.Referral, error) {
	if referrerID == referredID {
		return nil, apperr.New(apperr.SelfReferral, "Kendinizi davet edemezsiniz")
	}

	var users int64
	if err := e.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", []uint{referrerID, referredID}).Count(&users).Error; err != nil {
		return nil, errors.Wrap(err, "check users")
	}
	if users != 2 {
		return nil, apperr.New(apperr.NotFound, "Kullanıcı bulunamadı")
	}

	var existing int64
	if err := e.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).Count(&existing).Error; err != nil {
		return nil, errors.Wrap(err, "check referral")
	}
	if existing > 0 {
		return nil, apperr.New(apperr.DuplicateReferral, "Bu davet zaten kayıtlı")
	}

	if source == "" {
		source = SourceManual
	}
	ref := &models.Referral{
		ReferrerID: referrerID,
		ReferredID: referredID,
		Status:     models.ReferralApproved,
		Source:     source,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, apperr.Wrap(apperr.Invalid, err, "Geçersiz metadata")
		}
		ref.Metadata = datatypes.JSON(raw)
	}

	err := e.db.WithContext(ctx).Create(ref).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.New(apperr.DuplicateReferral, "Bu davet zaten kayıtlı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "create referral")
	}
	e.log.Info().Uint("referral_id", ref.ID).Uint("referrer_id", referrerID).Uint("referred_id", referredID).
		Str("source", source).Msg("🤝 yeni referans")

	grant, err := e.GiveReferralCredits(ctx, ref.ID)
	if err != nil {
		return ref, err
	}
	if grant.Referral != nil {
		ref = grant.Referral
	}
	return ref, nil
}

// GiveReferralCredits - iki tarafa da krediyi bir kez verir. Tutarlar bu anki
// ayarlardan okunur. Referans yoksa, kredisi verilmişse, reddedilmişse ya da
// referans sistemi kapalıysa hiçbir şey yapmaz.
func (e *Engine) GiveReferralCredits(ctx context.Context, referralID uint) (*Grant, error) {
	cfg, err := settings.Load(ctx, e.settings)
	if err != nil {
		return nil, err
	}
	out := &Grant{}
	if !cfg.Referral.Enabled {
		return out, nil
	}
	referrerCredit := cfg.Referral.ReferrerCredit.Round(2)
	referredCredit := cfg.Referral.ReferredCredit.Round(2)

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref models.Referral
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ref, referralID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "lock referral")
		}
		out.Referral = &ref
		if ref.CreditGiven || ref.Status != models.ReferralApproved {
			return nil
		}
		// tutar tanımlı değilse referans kredisiz bekler, sonraki onayda tekrar denenir
		if !referrerCredit.IsPositive() && !referredCredit.IsPositive() {
			return nil
		}

		reference := fmt.Sprintf("referral:%d", ref.ID)
		if referredCredit.IsPositive() {
			if _, err := e.ledger.Apply(ctx, tx, ledger.Change{
				UserID: ref.ReferredID, Amount: referredCredit, Type: models.TxAdd,
				Note: "Davet kredisi (hoş geldin)", Reference: reference, IsExpense: true,
			}); err != nil {
				return err
			}
		}
		if referrerCredit.IsPositive() {
			if _, err := e.ledger.Apply(ctx, tx, ledger.Change{
				UserID: ref.ReferrerID, Amount: referrerCredit, Type: models.TxAdd,
				Note: "Davet kredisi (davet eden)", Reference: reference, IsExpense: true,
			}); err != nil {
				return err
			}
		}

		now := e.now()
		err = tx.Model(&ref).Updates(map[string]interface{}{
			"credit_given":    true,
			"credited_at":     now,
			"referrer_credit": referrerCredit,
			"referred_credit": referredCredit,
		}).Error
		if err != nil {
			return errors.Wrap(err, "mark referral credited")
		}
		ref.CreditGiven = true
		ref.CreditedAt = &now
		ref.ReferrerCredit = referrerCredit
		ref.ReferredCredit = referredCredit
		out.Credited = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Credited {
		metrics.ReferralCreditsTotal.Inc()
		e.log.Info().Uint("referral_id", referralID).Str("referrer_credit", referrerCredit.StringFixed(2)).
			Str("referred_credit", referredCredit.StringFixed(2)).Msg("🎁 referans kredisi verildi")
		e.events.Emit(events.NewReferralEvent(events.ReferralSummary{
			ReferralID:     out.Referral.ID,
			ReferrerID:     out.Referral.ReferrerID,
			ReferredID:     out.Referral.ReferredID,
			ReferrerCredit: referrerCredit,
			ReferredCredit: referredCredit,
		}))
	}
	return out, nil
}

// RedeemLink - davet linkiyle gelen kullanıcıyı kaydeder
func (e *Engine) RedeemLink(ctx context.Context, token string, referredID uint) (*models.Referral, error) {
	referrerID, err := e.parseLinkToken(token)
	if err != nil {
		return nil, err
	}
	return e.AddReferral(ctx, referrerID, referredID, SourceLink, nil)
}

// Approve - durumu approved yapar, kredi verilmemişse verir
func (e *Engine) Approve(ctx context.Context, referralID uint) (*models.Referral, error) {
	if err := e.setStatus(ctx, referralID, models.ReferralApproved); err != nil {
		return nil, err
	}
	grant, err := e.GiveReferralCredits(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if grant.Referral != nil {
		return grant.Referral, nil
	}
	return e.Get(ctx, referralID)
}

// Reject - sadece durumu değiştirir, verilmiş kredi geri alınmaz
func (e *Engine) Reject(ctx context.Context, referralID uint) (*models.Referral, error) {
	if err := e.setStatus(ctx, referralID, models.ReferralRejected); err != nil {
		return nil, err
	}
	return e.Get(ctx, referralID)
}

func (e *Engine) setStatus(ctx context.Context, referralID uint, status string) error {
	res := e.db.WithContext(ctx).Model(&models.Referral{}).Where("id = ?", referralID).Update("status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update referral status")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "Referans bulunamadı")
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, referralID uint) (*models.Referral, error) {
	var ref models.Referral
	err := e.db.WithContext(ctx).First(&ref, referralID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Referans bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load referral")
	}
	return &ref, nil
}

func (e *Engine) ListByReferrer(ctx context.Context, referrerID uint) ([]models.Referral, error) {
	var out []models.Referral
	err := e.db.WithContext(ctx).Where("referrer_id = ?", referrerID).Order("created_at desc").Find(&out).Error
	return out, errors.Wrap(err, "list referrals")
}

func (e *Engine) Stats(ctx context.Context, referrerID uint) (*Stats, error) {
	refs, err := e.ListByReferrer(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	s := &Stats{Total: int64(len(refs))}
	for _, r := range refs {
		if r.CreditGiven {
			s.Credited++
			s.TotalEarned = s.TotalEarned.Add(r.ReferrerCredit)
		}
	}
	return s, nil
}
