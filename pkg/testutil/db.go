// Package testutil - paket testleri için bellek içi veritabanı ve fixture'lar
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"digitalstore-backend/pkg/models"
)

var dbSeq atomic.Int64

// NewDB - her test için ayrı, migrate edilmiş bellek içi SQLite.
// Tek bağlantı: SQLite'ta eşzamanlı yazıcı olmadığı için transaction'lar
// sıraya girer.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Username: strings.Split(email, "@")[0], Email: email, Balance: decimal.Zero}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// FundUser - bakiyeyi ledger kaydıyla birlikte yükler, mutabakat bozulmasın
func FundUser(t testing.TB, db *gorm.DB, user *models.User, amount string) {
	t.Helper()
	amt := Money(amount)
	err := db.Transaction(func(tx *gorm.DB) error {
		var fresh models.User
		if err := tx.First(&fresh, user.ID).Error; err != nil {
			return err
		}
		newBalance := fresh.Balance.Add(amt)
		if err := tx.Model(&fresh).Update("balance", newBalance).Error; err != nil {
			return err
		}
		return tx.Create(&models.BalanceTransaction{
			UserID:          user.ID,
			Amount:          amt,
			Type:            models.TxAdd,
			PreviousBalance: fresh.Balance,
			NewBalance:      newBalance,
			Note:            "test fixture",
		}).Error
	})
	if err != nil {
		t.Fatalf("fund user: %v", err)
	}
	user.Balance = user.Balance.Add(amt)
}

func CreateProduct(t testing.TB, db *gorm.DB, name, price string, categoryID *uint) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: Money(price), CategoryID: categoryID}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func CreateCoupon(t testing.TB, db *gorm.DB, c models.Coupon) *models.Coupon {
	t.Helper()
	c.Code = strings.ToUpper(c.Code)
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	return &c
}

func Reload[T any](t testing.TB, db *gorm.DB, id uint) *T {
	t.Helper()
	var out T
	if err := db.First(&out, id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	return &out
}

// LedgerSum - kullanıcının tüm ledger kayıtlarının işaretli toplamı
func LedgerSum(t testing.TB, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var rows []models.BalanceTransaction
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		t.Fatalf("ledger rows: %v", err)
	}
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount)
	}
	return sum
}
