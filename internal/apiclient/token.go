package apiclient

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims はトークンから読み取った情報。署名は検証しない。
type TokenClaims struct {
	UserID    string
	ExpiresAt time.Time // exp がない場合はゼロ値
}

// ParseTokenClaims はJWT形式のトークンを署名検証なしで解析する。
// JWTでないトークンはエラーを返す。
func ParseTokenClaims(token string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	var out TokenClaims
	out.UserID = claimString(claims["user_id"])
	if out.UserID == "" {
		out.UserID = claimString(claims["sub"])
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenClaims{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// TokenExpired はトークンのexpが現在時刻より前であればtrueを返す。
// JWTでない、またはexpを持たないトークンは期限切れとみなさない。
func TokenExpired(token string, now time.Time) bool {
	claims, err := ParseTokenClaims(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(claims.ExpiresAt)
}

func claimString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
