package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/models"
)

type Page struct {
	Items      []models.BalanceTransaction `json:"transactions"`
	TotalItems int64                       `json:"total_items"`
	Page       int                         `json:"current_page"`
	Limit      int                         `json:"per_page"`
}

// History - kullanıcının ledger kayıtları, en yeni önce
func (m *Mutator) History(ctx context.Context, userID uint, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := m.db.WithContext(ctx).Model(&models.BalanceTransaction{}).Where("user_id = ?", userID)
	out := &Page{Page: page, Limit: limit}
	if err := q.Count(&out.TotalItems).Error; err != nil {
		return nil, errors.Wrap(err, "count ledger")
	}
	err := m.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id desc").Offset((page - 1) * limit).Limit(limit).Find(&out.Items).Error
	if err != nil {
		return nil, errors.Wrap(err, "list ledger")
	}
	return out, nil
}

type Reconciliation struct {
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
}

func (r Reconciliation) Balanced() bool {
	return r.Balance.Equal(r.LedgerSum)
}

// Reconcile - bakiye ile ledger toplamını karşılaştırır
func (m *Mutator) Reconcile(ctx context.Context, userID uint) (*Reconciliation, error) {
	balance, err := m.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	var amounts []decimal.Decimal
	err = m.db.WithContext(ctx).Model(&models.BalanceTransaction{}).
		Where("user_id = ?", userID).Pluck("amount", &amounts).Error
	if err != nil {
		return nil, errors.Wrap(err, "sum ledger")
	}
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	return &Reconciliation{Balance: balance, LedgerSum: sum}, nil
}
