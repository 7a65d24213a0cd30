/*
Package ledger - Bakiye değiştirici

User.Balance'ı değiştirebilen TEK yer burasıdır. Her çağrı:
  - kullanıcı satırını kilitler (SELECT ... FOR UPDATE),
  - güncel bakiyeyi AYNI transaction içinde okur,
  - bakiyeyi yazar ve tam olarak bir BalanceTransaction kaydı ekler.

Bir kullanıcının bakiyesi her an ledger kayıtlarının işaretli toplamına eşittir.
*/
package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
)

// Change - tek bir bakiye hareketi. Amount her zaman pozitif, yönü Type belirler.
type Change struct {
	UserID    uint
	Amount    decimal.Decimal
	Type      string // models.TxAdd | models.TxSubtract
	Note      string
	Reference string
	IsRevenue bool
	IsExpense bool
	AdminID   *uint
}

type SetBalanceInput struct {
	UserID     uint
	NewBalance decimal.Decimal
	IsRevenue  bool
	IsExpense  bool
	AdminID    *uint
	Note       string
}

type Mutator struct {
	db *gorm.DB
}

func NewMutator(db *gorm.DB) *Mutator {
	return &Mutator{db: db}
}

// Apply - çağıranın transaction'ı içinde bakiye hareketi uygular
func (m *Mutator) Apply(ctx context.Context, tx *gorm.DB, ch Change) (*models.BalanceTransaction, error) {
	if !ch.Amount.IsPositive() {
		return nil, apperr.New(apperr.Invalid, "Tutar sıfırdan büyük olmalı")
	}

	var signed decimal.Decimal
	switch ch.Type {
	case models.TxAdd:
		signed = ch.Amount
	case models.TxSubtract:
		signed = ch.Amount.Neg()
	default:
		return nil, apperr.Newf(apperr.Invalid, "Bilinmeyen hareket tipi: %s", ch.Type)
	}

	user, err := lockUser(ctx, tx, ch.UserID)
	if err != nil {
		return nil, err
	}

	newBalance := user.Balance.Add(signed)
	if newBalance.IsNegative() {
		return nil, apperr.New(apperr.InsufficientBalance, "Yetersiz bakiye")
	}

	return write(ctx, tx, user, newBalance, entry{
		amount:    signed,
		typ:       ch.Type,
		note:      ch.Note,
		reference: ch.Reference,
		isRevenue: ch.IsRevenue,
		isExpense: ch.IsExpense,
		adminID:   ch.AdminID,
	})
}

// ApplyBalanceChange - kendi transaction'ını açar, yeni bakiyeyi döner
func (m *Mutator) ApplyBalanceChange(ctx context.Context, userID uint, amount decimal.Decimal, typ, note string) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := m.Apply(ctx, tx, Change{UserID: userID, Amount: amount, Type: typ, Note: note})
		if err != nil {
			return err
		}
		newBalance = row.NewBalance
		return nil
	})
	return newBalance, err
}

// SetBalance - admin düzeltmesi. Mutlak değer yazılır ama ledger kaydı farkı
// (yeni - eski) taşır, böylece mutabakat bozulmaz.
func (m *Mutator) SetBalance(ctx context.Context, in SetBalanceInput) (*models.BalanceTransaction, error) {
	if in.NewBalance.IsNegative() {
		return nil, apperr.New(apperr.Invalid, "Bakiye negatif olamaz")
	}
	if in.IsRevenue && in.IsExpense {
		return nil, apperr.New(apperr.Invalid, "Hareket hem gelir hem gider olamaz")
	}

	var out *models.BalanceTransaction
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		target := in.NewBalance.Round(2)
		diff := target.Sub(user.Balance)
		typ := models.TxAdd
		if diff.IsNegative() {
			typ = models.TxSubtract
		}
		note := in.Note
		if note == "" {
			note = "Admin bakiye düzeltmesi"
		}
		out, err = write(ctx, tx, user, target, entry{
			amount:    diff,
			typ:       typ,
			note:      note,
			isRevenue: in.IsRevenue,
			isExpense: in.IsExpense,
			adminID:   in.AdminID,
		})
		return err
	})
	return out, err
}

// Balance - salt okunur
func (m *Mutator) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	var user models.User
	err := m.db.WithContext(ctx).Select("id", "balance").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, apperr.New(apperr.NotFound, "Kullanıcı bulunamadı")
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load balance")
	}
	return user.Balance, nil
}

type entry struct {
	amount    decimal.Decimal
	typ       string
	note      string
	reference string
	isRevenue bool
	isExpense bool
	adminID   *uint
}

func lockUser(ctx context.Context, tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "Kullanıcı bulunamadı")
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock user")
	}
	return &user, nil
}

func write(ctx context.Context, tx *gorm.DB, user *models.User, newBalance decimal.Decimal, e entry) (*models.BalanceTransaction, error) {
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		UpdateColumn("balance", newBalance).Error; err != nil {
		return nil, errors.Wrap(err, "update balance")
	}

	row := &models.BalanceTransaction{
		UserID:          user.ID,
		Amount:          e.amount,
		Type:            e.typ,
		PreviousBalance: user.Balance,
		NewBalance:      newBalance,
		IsRevenue:       e.isRevenue,
		IsExpense:       e.isExpense,
		Note:            e.note,
		AdminID:         e.adminID,
		Reference:       e.reference,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return nil, errors.Wrap(err, "create balance transaction")
	}
	return row, nil
}
