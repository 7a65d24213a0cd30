package referral

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"digitalstore-backend/pkg/apperr"
)

const (
	tokenType = "referral"
	tokenTTL  = 30 * 24 * time.Hour
)

type linkClaims struct {
	Ref  uint   `json:"ref"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueLinkToken - davet linkine gömülen, davet edenin id'sini taşıyan token
func (e *Engine) IssueLinkToken(referrerID uint) (string, error) {
	now := e.now()
	claims := linkClaims{
		Ref:  referrerID,
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	return s, errors.Wrap(err, "sign referral token")
}

func (e *Engine) parseLinkToken(token string) (uint, error) {
	var claims linkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return e.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(e.now))
	if err != nil || claims.Type != tokenType || claims.Ref == 0 {
		return 0, apperr.New(apperr.Invalid, "Geçersiz davet linki")
	}
	return claims.Ref, nil
}
