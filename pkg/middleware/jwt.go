package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential は認証情報が無い、または形式が不正であることを表す。
	ErrMissingCredential = errors.New("認証情報がありません")
	// ErrTokenExpired はトークンの有効期限が切れていることを表す。
	// クライアントはログインし直す代わりにトークンを更新すればよい。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
	// ErrUnauthorized は署名不正・改ざん・必須クレーム欠落など、期限切れ以外の検証失敗を表す。
	ErrUnauthorized = errors.New("認証されていません")
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"userId"`
}

// tokenIssuer はこのサービスが発行するトークンのiss。
const tokenIssuer = "relay"

// headerKeyUserID は認証済みユーザーIDを返すHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// GenerateJWT はユーザーIDから有効期間ttlのJWTトークンを生成する。
func GenerateJWT(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はトークンを検証してユーザーIDを返す。
// 期限切れはErrTokenExpired、それ以外の失敗はErrUnauthorized（空ならErrMissingCredential）を返す。
func VerifyToken(secret, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingCredential
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrUnauthorized
	}
	return claims.UserID, nil
}

// BearerToken はAuthorizationヘッダーの値からトークンを取り出す。
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", ErrMissingCredential
	}
	return strings.TrimSpace(token), nil
}

// StatusFor は認証エラーに対応するHTTPステータスを返す。
// 期限切れだけを401として区別し、それ以外はすべて403にする。
func StatusFor(err error) int {
	if errors.Is(err, ErrTokenExpired) {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var userID string
			userID, err = VerifyToken(secret, tokenString)
			if err == nil {
				c.Set("user_id", userID)
				c.Header(headerKeyUserID, userID)
				c.Next()
				return
			}
		}

		msg := "認証に失敗しました"
		if errors.Is(err, ErrTokenExpired) {
			msg = "トークンの有効期限が切れています"
		}
		c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": msg})
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
