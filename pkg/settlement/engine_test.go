package settlement

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/models"
	"digitalstore-backend/pkg/testutil"
)

func newEngine(t *testing.T) (*Engine, *gorm.DB, *events.Recorder, *events.Dispatcher) {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &events.Recorder{}
	d := events.NewDispatcher(rec, zerolog.Nop())
	e := NewEngine(db, discount.NewResolver(), ledger.NewMutator(db), d, zerolog.Nop())
	return e, db, rec, d
}

func ledgerRows(db *gorm.DB, userID uint) int64 {
	var n int64
	db.Model(&models.BalanceTransaction{}).Where("user_id = ?", userID).Count(&n)
	return n
}

func TestSettleFreeProduct(t *testing.T) {
	e, db, rec, d := newEngine(t)
	user := testutil.CreateUser(t, db, "ucretsiz@example.com")
	product := testutil.CreateProduct(t, db, "Deneme Sürümü", "0", nil)

	order, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "balance"})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	d.Wait()

	if order.Status != models.StatusCompleted || order.PaymentMethod != models.PaymentMethodFree {
		t.Errorf("order status=%s method=%s", order.Status, order.PaymentMethod)
	}
	if !order.Amount.IsZero() {
		t.Errorf("amount = %s", order.Amount)
	}
	if got := testutil.Reload[models.Product](t, db, product.ID).Downloads; got != 1 {
		t.Errorf("downloads = %d, want 1", got)
	}
	if n := ledgerRows(db, user.ID); n != 0 {
		t.Errorf("ledger rows = %d, want 0", n)
	}
	evts := rec.OfType(events.OrderCompleted)
	if len(evts) != 1 || evts[0].Order.IsPaid {
		t.Errorf("events = %+v", evts)
	}
}

func TestSettleFreeMethodOnPaidProduct(t *testing.T) {
	e, db, _, _ := newEngine(t)
	user := testutil.CreateUser(t, db, "kurnaz@example.com")
	product := testutil.CreateProduct(t, db, "Pro Lisans", "99", nil)

	_, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "free"})
	if !apperr.Is(err, apperr.Invalid) {
		t.Errorf("err = %v, want Invalid", err)
	}
}

func TestSettleBalanceBoundary(t *testing.T) {
	tests := []struct {
		name     string
		funds    string
		wantKind apperr.Kind
	}{
		{"exact balance", "100", ""},
		{"one kurus short", "99.99", apperr.InsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db, rec, d := newEngine(t)
			user := testutil.CreateUser(t, db, "sinir@example.com")
			testutil.FundUser(t, db, user, tt.funds)
			product := testutil.CreateProduct(t, db, "Windows 11 Pro", "100", nil)

			order, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: models.PaymentMethodBalance})
			d.Wait()
			after := testutil.Reload[models.User](t, db, user.ID)

			if tt.wantKind != "" {
				if !apperr.Is(err, tt.wantKind) {
					t.Fatalf("err = %v, want %s", err, tt.wantKind)
				}
				if !after.Balance.Equal(testutil.Money(tt.funds)) {
					t.Errorf("balance changed to %s", after.Balance)
				}
				var orders int64
				db.Model(&models.Order{}).Count(&orders)
				if orders != 0 {
					t.Errorf("orders = %d, want 0", orders)
				}
				if len(rec.Events()) != 0 {
					t.Error("no events on failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("Settle: %v", err)
			}
			if !after.Balance.IsZero() {
				t.Errorf("balance = %s, want 0", after.Balance)
			}
			if order.Status != models.StatusCompleted || order.PaymentMethod != models.PaymentMethodBalance {
				t.Errorf("order = %+v", order)
			}
			if !strings.HasPrefix(order.OrderNumber, "ORD") || len(order.OrderNumber) != 23 {
				t.Errorf("order number = %q", order.OrderNumber)
			}
			if !testutil.LedgerSum(t, db, user.ID).Equal(after.Balance) {
				t.Error("ledger does not reconcile")
			}
			if got := testutil.Reload[models.Product](t, db, product.ID).Downloads; got != 1 {
				t.Errorf("downloads = %d", got)
			}
			if evts := rec.OfType(events.OrderCompleted); len(evts) != 1 || !evts[0].Order.IsPaid {
				t.Errorf("events = %+v", evts)
			}
		})
	}
}

func TestSettleWithCoupon(t *testing.T) {
	e, db, _, d := newEngine(t)
	user := testutil.CreateUser(t, db, "kupon@example.com")
	testutil.FundUser(t, db, user, "100")
	product := testutil.CreateProduct(t, db, "Office 2024", "100", nil)
	max := 5
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "HOSGELDIN", DiscountType: models.DiscountPercentage, DiscountValue: testutil.Money("20"), Active: true, MaxUses: &max})

	order, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "balance", CouponCode: "hosgeldin"})
	if err != nil {
		t.Fatal(err)
	}
	d.Wait()

	if order.Amount.StringFixed(2) != "80.00" || order.DiscountAmount.StringFixed(2) != "20.00" || order.OriginalAmount.StringFixed(2) != "100.00" {
		t.Errorf("amount=%s discount=%s original=%s", order.Amount, order.DiscountAmount, order.OriginalAmount)
	}
	if order.CouponID == nil || *order.CouponID != coupon.ID {
		t.Errorf("coupon id = %v", order.CouponID)
	}
	if got := testutil.Reload[models.Coupon](t, db, coupon.ID).UsedCount; got != 1 {
		t.Errorf("used count = %d", got)
	}
	if got := testutil.Reload[models.User](t, db, user.ID).Balance; got.StringFixed(2) != "20.00" {
		t.Errorf("balance = %s", got)
	}
}

// sequence - sırayla verilen sipariş numaralarını döner, son değeri tekrarlar
func sequence(numbers ...string) (func() string, *int) {
	calls := 0
	return func() string {
		n := numbers[len(numbers)-1]
		if calls < len(numbers) {
			n = numbers[calls]
		}
		calls++
		return n
	}, &calls
}

func TestSettleRetriesOrderNumberCollision(t *testing.T) {
	e, db, _, d := newEngine(t)
	user := testutil.CreateUser(t, db, "cakisma@example.com")
	testutil.FundUser(t, db, user, "100")
	product := testutil.CreateProduct(t, db, "Windows 11 Pro", "30", nil)
	max := 10
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "ON", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("10"), Active: true, MaxUses: &max})
	ctx := context.Background()

	e.newOrderNumber, _ = sequence("ORD-X")
	if _, err := e.Settle(ctx, Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "balance"}); err != nil {
		t.Fatal(err)
	}

	var calls *int
	e.newOrderNumber, calls = sequence("ORD-X", "ORD-Y")
	order, err := e.Settle(ctx, Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "balance", CouponCode: "ON"})
	if err != nil {
		t.Fatalf("Settle after collision: %v", err)
	}
	if order.OrderNumber != "ORD-Y" || *calls != 2 {
		t.Errorf("order number = %s after %d attempts, want ORD-Y after 2", order.OrderNumber, *calls)
	}
	if got := testutil.Reload[models.Coupon](t, db, coupon.ID).UsedCount; got != 1 {
		t.Errorf("used count = %d, want 1", got)
	}
	if got := testutil.Reload[models.User](t, db, user.ID).Balance; !got.Equal(testutil.Money("50")) {
		t.Errorf("balance = %s, want 50", got)
	}

	// her denemede çakışma: hata döner, hiçbir satır kalmaz
	rows := ledgerRows(db, user.ID)
	e.newOrderNumber, calls = sequence("ORD-X")
	_, err = e.Settle(ctx, Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "balance", CouponCode: "ON"})
	if err == nil {
		t.Fatal("expected error when every order number collides")
	}
	if *calls != maxOrderNumberAttempts {
		t.Errorf("attempts = %d, want %d", *calls, maxOrderNumberAttempts)
	}
	d.Wait()
	if n := ledgerRows(db, user.ID); n != rows {
		t.Errorf("ledger rows = %d, want %d", n, rows)
	}
	if got := testutil.Reload[models.User](t, db, user.ID).Balance; !got.Equal(testutil.Money("50")) {
		t.Errorf("balance = %s, want 50", got)
	}
	if got := testutil.Reload[models.Coupon](t, db, coupon.ID).UsedCount; got != 1 {
		t.Errorf("used count = %d, want 1", got)
	}
	var usages, orders int64
	db.Model(&models.CouponUsage{}).Count(&usages)
	db.Model(&models.Order{}).Count(&orders)
	if usages != 1 || orders != 2 {
		t.Errorf("coupon usages = %d orders = %d, want 1 and 2", usages, orders)
	}
	if got := testutil.Reload[models.Product](t, db, product.ID).Downloads; got != 2 {
		t.Errorf("downloads = %d, want 2", got)
	}
}

func TestSettleRejectedCouponLeavesNoTrace(t *testing.T) {
	e, db, _, _ := newEngine(t)
	user := testutil.CreateUser(t, db, "red@example.com")
	testutil.FundUser(t, db, user, "100")
	product := testutil.CreateProduct(t, db, "Antivirüs", "50", nil)

	_, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "balance", CouponCode: "YOKBOYLE"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("err = %v", err)
	}
	if n := ledgerRows(db, user.ID); n != 1 {
		t.Errorf("ledger rows = %d, want only the fixture", n)
	}
	if got := testutil.Reload[models.Product](t, db, product.ID).Downloads; got != 0 {
		t.Errorf("downloads = %d", got)
	}
}

func TestSettleExternalProviderIsPending(t *testing.T) {
	e, db, rec, d := newEngine(t)
	user := testutil.CreateUser(t, db, "kart@example.com")
	product := testutil.CreateProduct(t, db, "Adobe CC", "300", nil)
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "SABIT50", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("50"), Active: true})

	order, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "PayTR", CouponCode: "SABIT50"})
	if err != nil {
		t.Fatal(err)
	}
	d.Wait()

	if order.Status != models.StatusPending || order.PaymentMethod != models.ProviderPayTR {
		t.Errorf("order status=%s method=%s", order.Status, order.PaymentMethod)
	}
	if order.Amount.StringFixed(2) != "250.00" {
		t.Errorf("amount = %s", order.Amount)
	}
	if n := ledgerRows(db, user.ID); n != 0 {
		t.Errorf("ledger rows = %d", n)
	}
	if got := testutil.Reload[models.Coupon](t, db, coupon.ID).UsedCount; got != 0 {
		t.Errorf("coupon consumed on pending order: %d", got)
	}
	if got := testutil.Reload[models.Product](t, db, product.ID).Downloads; got != 0 {
		t.Errorf("downloads = %d", got)
	}
	if len(rec.OfType(events.OrderPending)) != 1 || len(rec.OfType(events.OrderCompleted)) != 0 {
		t.Errorf("events = %+v", rec.Events())
	}

	// callback sonrası admin/servis tamamlar
	done, err := e.Transition(context.Background(), order.ID, models.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	d.Wait()
	if done.Status != models.StatusCompleted || done.CompletedAt == nil {
		t.Errorf("transitioned = %+v", done)
	}
	if got := testutil.Reload[models.Coupon](t, db, coupon.ID).UsedCount; got != 1 {
		t.Errorf("coupon used count after completion = %d", got)
	}
	if got := testutil.Reload[models.Product](t, db, product.ID).Downloads; got != 1 {
		t.Errorf("downloads after completion = %d", got)
	}

	if _, err := e.Transition(context.Background(), order.ID, models.StatusFailed); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("backward transition err = %v, want Conflict", err)
	}
}

func TestSettleValidation(t *testing.T) {
	e, db, _, _ := newEngine(t)
	user := testutil.CreateUser(t, db, "v@example.com")
	product := testutil.CreateProduct(t, db, "X", "10", nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want apperr.Kind
	}{
		{"unknown method", Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "bitcoin"}, apperr.Invalid},
		{"missing product", Request{UserID: user.ID, ProductID: 999, PaymentMethod: "balance"}, apperr.NotFound},
		{"missing user", Request{UserID: 999, ProductID: product.ID, PaymentMethod: "balance"}, apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Settle(ctx, tt.req); !apperr.Is(err, tt.want) {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestCouponCapUnderConcurrentSettlement(t *testing.T) {
	e, db, _, d := newEngine(t)
	product := testutil.CreateProduct(t, db, "Sınırlı", "10", nil)
	max := 3
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "UCKISI", DiscountType: models.DiscountFixed, DiscountValue: testutil.Money("5"), Active: true, MaxUses: &max})

	users := make([]*models.User, 8)
	for i := range users {
		users[i] = testutil.CreateUser(t, db, "u"+string(rune('a'+i))+"@example.com")
		testutil.FundUser(t, db, users[i], "10")
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			e.Settle(context.Background(), Request{UserID: u.ID, ProductID: product.ID, PaymentMethod: "balance", CouponCode: "UCKISI"})
		}(u)
	}
	wg.Wait()
	d.Wait()

	got := testutil.Reload[models.Coupon](t, db, coupon.ID)
	if got.UsedCount != max {
		t.Errorf("UsedCount = %d, want %d", got.UsedCount, max)
	}
	var orders int64
	db.Model(&models.Order{}).Where("coupon_id = ?", coupon.ID).Count(&orders)
	if orders != int64(max) {
		t.Errorf("orders with coupon = %d", orders)
	}
	for _, u := range users {
		after := testutil.Reload[models.User](t, db, u.ID)
		if !testutil.LedgerSum(t, db, u.ID).Equal(after.Balance) {
			t.Errorf("user %d does not reconcile", u.ID)
		}
	}
}

func TestListByUser(t *testing.T) {
	e, db, _, d := newEngine(t)
	user := testutil.CreateUser(t, db, "liste@example.com")
	product := testutil.CreateProduct(t, db, "Ücretsiz", "0", nil)
	for i := 0; i < 3; i++ {
		if _, err := e.Settle(context.Background(), Request{UserID: user.ID, ProductID: product.ID, PaymentMethod: "free"}); err != nil {
			t.Fatal(err)
		}
	}
	d.Wait()

	page, err := e.ListByUser(context.Background(), user.ID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalItems != 3 || len(page.Orders) != 2 {
		t.Errorf("total=%d len=%d", page.TotalItems, len(page.Orders))
	}
	if _, err := e.Get(context.Background(), 12345); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Get missing err = %v", err)
	}
}

func TestNewOrderNumberShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := NewOrderNumber()
		if len(n) != 23 || !strings.HasPrefix(n, "ORD") {
			t.Fatalf("bad order number %q", n)
		}
		seen[n] = true
	}
	if len(seen) < 45 {
		t.Errorf("too many collisions: %d unique of 50", len(seen))
	}
}

func TestQuoteDoesNotConsume(t *testing.T) {
	e, db, _, _ := newEngine(t)
	product := testutil.CreateProduct(t, db, "Office 2024", "100", nil)
	coupon := testutil.CreateCoupon(t, db, models.Coupon{Code: "YUZDE20", DiscountType: models.DiscountPercentage, DiscountValue: testutil.Money("20"), Active: true})

	res, err := e.Quote(context.Background(), product.ID, "yuzde20", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalPrice.StringFixed(2) != "80.00" || res.Source != discount.SourceCoupon {
		t.Errorf("quote = %+v", res)
	}
	if got := testutil.Reload[models.Coupon](t, db, coupon.ID).UsedCount; got != 0 {
		t.Errorf("used count = %d", got)
	}
	if _, err := e.Quote(context.Background(), 777, "", nil); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("missing product err = %v", err)
	}
}
