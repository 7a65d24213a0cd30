package discount

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
)

// ConsumeCoupon - kupon kullanımını sipariş ile AYNI transaction içinde kaydeder.
// used_count artışı koşullu UPDATE ile yapılır; limit dolmuşsa hiçbir satır
// etkilenmez ve UsageExceeded döner.
func ConsumeCoupon(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uint, discount decimal.Decimal) error {
	res := tx.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND (max_uses IS NULL OR used_count < max_uses)", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return errors.Wrap(res.Error, "increment coupon usage")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.UsageExceeded, "Bu kupon kullanım limitine ulaştı")
	}

	usage := models.CouponUsage{CouponID: couponID, UserID: userID, OrderID: orderID, Discount: discount}
	return errors.Wrap(tx.WithContext(ctx).Create(&usage).Error, "create coupon usage")
}
