package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/testutil"
)

func intPtr(v int) *int { return &v }

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		price string
		typ   string
		value string
		want  string
	}{
		{"percentage 20 of 100", "100", models.DiscountPercentage, "20", "80.00"},
		{"fixed 30 of 100", "100", models.DiscountFixed, "30", "70.00"},
		{"fixed larger than price", "100", models.DiscountFixed, "150", "0.00"},
		{"percentage over 100", "100", models.DiscountPercentage, "120", "0.00"},
		{"percentage rounding", "99.99", models.DiscountPercentage, "15", "84.99"},
		{"zero discount", "49.90", models.DiscountFixed, "0", "49.90"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(testutil.Money(tt.price), tt.typ, testutil.Money(tt.value))
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got.StringFixed(2) != tt.want {
				t.Errorf("Apply(%s, %s, %s) = %s, want %s", tt.price, tt.typ, tt.value, got.StringFixed(2), tt.want)
			}
		})
	}
}

func TestApplyRejects(t *testing.T) {
	if _, err := Apply(decimal.NewFromInt(10), "bogo", decimal.NewFromInt(1)); !apperr.Is(err, apperr.Invalid) {
		t.Errorf("unknown type err = %v", err)
	}
	if _, err := Apply(decimal.NewFromInt(10), models.DiscountFixed, decimal.NewFromInt(-1)); !apperr.Is(err, apperr.Invalid) {
		t.Errorf("negative value err = %v", err)
	}
}

func TestResolveCoupon(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	r := NewResolver().WithClock(func() time.Time { return now })

	product := testutil.CreateProduct(t, db, "Windows 11 Pro", "100", nil)

	testutil.CreateCoupon(t, db, models.Coupon{Code: "yuzde20", DiscountType: models.DiscountPercentage, DiscountValue: testutil.Money("20"), Active: true, ExpiresAt: &future})
	testutil.CreateCoupon(t, db, models.Coupon{Code: "SABIT30", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("30"), Active: true})
	testutil.CreateCoupon(t, db, models.Coupon{Code: "PASIF", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("5"), Active: false})
	testutil.CreateCoupon(t, db, models.Coupon{Code: "ESKI", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("5"), Active: true, ExpiresAt: &past})
	testutil.CreateCoupon(t, db, models.Coupon{Code: "DOLU", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("5"), Active: true, MaxUses: intPtr(2), UsedCount: 2})
	testutil.CreateCoupon(t, db, models.Coupon{Code: "MIN500", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("5"), Active: true, MinOrderAmount: testutil.Money("500")})

	tests := []struct {
		code      string
		wantFinal string
		wantKind  apperr.Kind
	}{
		{"YUZDE20", "80.00", ""},
		{"sabit30", "70.00", ""},
		{"YOK", "", apperr.NotFound},
		{"PASIF", "", apperr.Inactive},
		{"ESKI", "", apperr.Expired},
		{"DOLU", "", apperr.UsageExceeded},
		{"MIN500", "", apperr.NotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res, err := r.Resolve(ctx, db, Request{Product: product, CouponCode: tt.code})
			if tt.wantKind != "" {
				if !apperr.Is(err, tt.wantKind) {
					t.Fatalf("err = %v, want %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.FinalPrice.StringFixed(2) != tt.wantFinal {
				t.Errorf("FinalPrice = %s, want %s", res.FinalPrice.StringFixed(2), tt.wantFinal)
			}
			if res.Source != SourceCoupon || res.CouponID() == nil {
				t.Errorf("Source = %s", res.Source)
			}
			if !res.DiscountAmount.Add(res.FinalPrice).Equal(res.OriginalPrice) {
				t.Errorf("discount + final != original: %s + %s", res.DiscountAmount, res.FinalPrice)
			}
		})
	}
}

func TestResolveFreeProductSkipsLookup(t *testing.T) {
	db := testutil.NewDB(t)
	product := testutil.CreateProduct(t, db, "Ücretsiz Araç", "0", nil)

	res, err := NewResolver().Resolve(context.Background(), db, Request{Product: product, CouponCode: "OLMAYAN"})
	if err != nil {
		t.Fatalf("free product must not look up coupons: %v", err)
	}
	if !res.FinalPrice.IsZero() || res.Source != SourceNone {
		t.Errorf("res = %+v", res)
	}
}

func TestResolveRejectsStacking(t *testing.T) {
	db := testutil.NewDB(t)
	product := testutil.CreateProduct(t, db, "Office 2024", "250", nil)
	bundleID := uint(1)

	_, err := NewResolver().Resolve(context.Background(), db, Request{Product: product, CouponCode: "X", BundleID: &bundleID})
	if !apperr.Is(err, apperr.Invalid) {
		t.Errorf("err = %v, want Invalid", err)
	}
}

func TestResolveBundle(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	cat := models.Category{Name: "İşletim Sistemleri"}
	db.Create(&cat)
	other := models.Category{Name: "Antivirüs"}
	db.Create(&other)

	inCat := testutil.CreateProduct(t, db, "Windows 11", "200", &cat.ID)
	outCat := testutil.CreateProduct(t, db, "ESET", "200", &other.ID)
	listed := testutil.CreateProduct(t, db, "Office", "300", nil)

	byCategory := models.Bundle{Name: "OS paketi", CategoryID: &cat.ID, DiscountType: models.DiscountPercentage, DiscountValue: testutil.Money("10"), Active: true}
	byList := models.Bundle{Name: "Ofis paketi", ProductIDs: models.ProductIDList{int64(listed.ID)}, DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("50"), Active: true}
	inactive := models.Bundle{Name: "Kapalı", CategoryID: &cat.ID, DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("1"), Active: false}
	unscoped := models.Bundle{Name: "Kapsamsız", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("1"), Active: true}
	for _, b := range []*models.Bundle{&byCategory, &byList, &inactive, &unscoped} {
		if err := db.Create(b).Error; err != nil {
			t.Fatal(err)
		}
	}

	r := NewResolver()
	tests := []struct {
		name      string
		product   *models.Product
		bundleID  uint
		wantFinal string
		wantKind  apperr.Kind
	}{
		{"category match", inCat, byCategory.ID, "180.00", ""},
		{"category mismatch", outCat, byCategory.ID, "", apperr.NotApplicable},
		{"product list match", listed, byList.ID, "250.00", ""},
		{"product list mismatch", inCat, byList.ID, "", apperr.NotApplicable},
		{"inactive", inCat, inactive.ID, "", apperr.Inactive},
		{"no scope", inCat, unscoped.ID, "", apperr.NotApplicable},
		{"missing", inCat, 9999, "", apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.bundleID
			res, err := r.Resolve(ctx, db, Request{Product: tt.product, BundleID: &id})
			if tt.wantKind != "" {
				if !apperr.Is(err, tt.wantKind) {
					t.Fatalf("err = %v, want %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := res.FinalPrice.StringFixed(2); got != tt.wantFinal {
				t.Errorf("FinalPrice = %s, want %s", got, tt.wantFinal)
			}
		})
	}
}

func TestCalculateBundle(t *testing.T) {
	db := testutil.NewDB(t)
	product := testutil.CreateProduct(t, db, "Office", "300", nil)
	bundle := models.Bundle{Name: "Ofis", ProductIDs: models.ProductIDList{int64(product.ID)}, DiscountType: models.DiscountPercentage, DiscountValue: testutil.Money("25"), Active: true}
	db.Create(&bundle)

	res, err := NewResolver().CalculateBundle(context.Background(), db, bundle.ID, product.ID, testutil.Money("200"))
	if err != nil {
		t.Fatal(err)
	}
	if res.DiscountAmount.StringFixed(2) != "50.00" || res.FinalPrice.StringFixed(2) != "150.00" {
		t.Errorf("discount=%s final=%s", res.DiscountAmount, res.FinalPrice)
	}

	// tutar verilmezse ürün fiyatı kullanılır
	res, err = NewResolver().CalculateBundle(context.Background(), db, bundle.ID, product.ID, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalPrice.StringFixed(2) != "225.00" {
		t.Errorf("final = %s", res.FinalPrice)
	}
}

func TestConsumeCouponRespectsCap(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "TEK", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("5"), Active: true, MaxUses: intPtr(1)})

	if err := ConsumeCoupon(ctx, db, coupon.ID, 1, 1, testutil.Money("5")); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := ConsumeCoupon(ctx, db, coupon.ID, 2, 2, testutil.Money("5")); !apperr.Is(err, apperr.UsageExceeded) {
		t.Fatalf("second consume err = %v, want UsageExceeded", err)
	}

	got := testutil.Reload[models.Coupon](t, db, coupon.ID)
	if got.UsedCount != 1 {
		t.Errorf("UsedCount = %d, want 1", got.UsedCount)
	}
	var usages int64
	db.Model(&models.CouponUsage{}).Where("coupon_id = ?", coupon.ID).Count(&usages)
	if usages != 1 {
		t.Errorf("usage rows = %d, want 1", usages)
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		typ, value string
		ok         bool
	}{
		{models.DiscountPercentage, "20", true},
		{models.DiscountPercentage, "100", true},
		{models.DiscountPercentage, "100.01", false},
		{models.DiscountFixed, "250", true},
		{models.DiscountFixed, "0", false},
		{models.DiscountFixed, "-5", false},
		{"bedava", "10", false},
	}
	for _, tt := range tests {
		err := ValidateRule(tt.typ, testutil.Money(tt.value))
		if (err == nil) != tt.ok {
			t.Errorf("ValidateRule(%s, %s) = %v, want ok=%v", tt.typ, tt.value, err, tt.ok)
		}
		if err != nil && !apperr.Is(err, apperr.Invalid) {
			t.Errorf("ValidateRule(%s, %s) kind = %s", tt.typ, tt.value, apperr.KindOf(err))
		}
	}
}
