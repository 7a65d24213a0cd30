/*
Package auth - JWT doğrulama

Token'lar auth servisi tarafından HS256 ile imzalanır, "sub" kullanıcı
id'sidir. Admin yetkisi token'dan değil veritabanındaki is_admin
alanından okunur.
*/
package auth

import (
	"strconv"
	"time"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/models"
)

const contextKey = "user"

func Middleware(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(secret)},
		ContextKey: contextKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Giriş yapmanız gerekiyor!"})
		},
	})
}

// IssueToken - auth servisinin ürettiği token ile aynı biçim
func IssueToken(secret string, userID uint, ttl time.Duration) (string, error) {
	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
	})
	s, err := claims.SignedString([]byte(secret))
	return s, errors.Wrap(err, "sign token")
}

// UserID - Middleware'den geçmiş isteğin kullanıcı id'si
func UserID(c *fiber.Ctx) (uint, error) {
	token, ok := c.Locals(contextKey).(*jwt.Token)
	if !ok {
		return 0, apperr.New(apperr.Invalid, "Kimlik bilgisi yok")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, apperr.New(apperr.Invalid, "Geçersiz token")
	}
	switch sub := claims["sub"].(type) {
	case float64:
		if sub > 0 {
			return uint(sub), nil
		}
	case string:
		if id, err := strconv.ParseUint(sub, 10, 64); err == nil && id > 0 {
			return uint(id), nil
		}
	}
	return 0, apperr.New(apperr.Invalid, "Geçersiz token")
}

// RequireAdmin - Middleware'den sonra kullanılır
func RequireAdmin(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := UserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Giriş yapmanız gerekiyor!"})
		}
		var user models.User
		if err := db.WithContext(c.UserContext()).Select("id", "is_admin").First(&user, id).Error; err != nil || !user.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Bu işlem için yetkiniz yok"})
		}
		c.Locals("admin_id", user.ID)
		return c.Next()
	}
}

// AdminID - RequireAdmin'den geçmiş isteğin admin id'si
func AdminID(c *fiber.Ctx) *uint {
	if id, ok := c.Locals("admin_id").(uint); ok {
		return &id
	}
	return nil
}
