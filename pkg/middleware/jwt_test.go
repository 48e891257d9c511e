package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// signClaims は任意のクレームでトークンを署名するヘルパー関数。
func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims JWTClaims) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return tokenStr
}

// expiredToken は1時間前に期限切れになったトークンを返す。
func expiredToken(t *testing.T) string {
	t.Helper()
	return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-25 * time.Hour)),
			Issuer:    tokenIssuer,
		},
		UserID: "user-expired",
	})
}

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-123", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}
		if claims.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
		}
		if claims.Issuer != tokenIssuer {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, tokenIssuer)
		}
	})

	t.Run("有効期限がttl後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testSecret, "user-exp", 2*time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		if _, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		}); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		expected := before.Add(2 * time.Hour)
		if claims.ExpiresAt.Time.Before(expected.Add(-time.Minute)) || claims.ExpiresAt.Time.After(expected.Add(time.Minute)) {
			t.Errorf("ExpiresAt = %v, want ~%v", claims.ExpiresAt.Time, expected)
		}
	})
}

// TestVerifyToken はVerifyToken関数のエラー分類を検証する。
func TestVerifyToken(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンからユーザーIDを取り出せること", func(t *testing.T) {
		t.Parallel()

		tokenStr, _ := GenerateJWT(testSecret, "user-ok", time.Hour)
		userID, err := VerifyToken(testSecret, tokenStr)
		if err != nil {
			t.Fatalf("VerifyToken()でエラーが発生: %v", err)
		}
		if userID != "user-ok" {
			t.Errorf("userID = %q, want user-ok", userID)
		}
	})

	t.Run("期限切れはErrTokenExpiredになること", func(t *testing.T) {
		t.Parallel()

		_, err := VerifyToken(testSecret, expiredToken(t))
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("err = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("異なるシークレットはErrUnauthorizedになること", func(t *testing.T) {
		t.Parallel()

		tokenStr, _ := GenerateJWT("different-secret", "user-diff", time.Hour)
		_, err := VerifyToken(testSecret, tokenStr)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
		if errors.Is(err, ErrTokenExpired) {
			t.Error("署名不正が期限切れとして扱われた")
		}
	})

	t.Run("壊れたトークンはErrUnauthorizedになること", func(t *testing.T) {
		t.Parallel()

		_, err := VerifyToken(testSecret, "not-a-jwt")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("HS256以外のアルゴリズムは拒否されること", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			UserID:           "user-hs512",
		})
		if _, err := VerifyToken(testSecret, tokenStr); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("ユーザーIDの無いトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		if _, err := VerifyToken(testSecret, tokenStr); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("空のトークンはErrMissingCredentialになること", func(t *testing.T) {
		t.Parallel()

		if _, err := VerifyToken(testSecret, ""); !errors.Is(err, ErrMissingCredential) {
			t.Errorf("err = %v, want ErrMissingCredential", err)
		}
	})
}

// TestBearerToken はBearerToken関数を検証する。
func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "Bearer形式", header: "Bearer abc.def", want: "abc.def"},
		{name: "空ヘッダー", header: "", wantErr: true},
		{name: "接頭辞なし", header: "abc.def", wantErr: true},
		{name: "トークンが空", header: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BearerToken(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingCredential) {
					t.Errorf("err = %v, want ErrMissingCredential", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("BearerToken() = (%q, %v), want (%q, nil)", got, err, tt.want)
			}
		})
	}
}

// serveWithAuth はJWTAuthを適用したルーターにリクエストを送るヘルパー関数。
func serveWithAuth(authHeader string) (*httptest.ResponseRecorder, string) {
	var captured string
	router := gin.New()
	router.Use(JWTAuth(testSecret))
	router.GET("/test", func(c *gin.Context) {
		captured = GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, captured
}

// TestJWTAuth はJWTAuthミドルウェアを検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでリクエストが成功すること", func(t *testing.T) {
		t.Parallel()

		tokenStr, _ := GenerateJWT(testSecret, "user-ok", time.Hour)
		w, userID := serveWithAuth("Bearer " + tokenStr)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if userID != "user-ok" {
			t.Errorf("user_id = %q, want %q", userID, "user-ok")
		}
		if got := w.Header().Get("X-User-ID"); got != "user-ok" {
			t.Errorf("X-User-ID = %q, want %q", got, "user-ok")
		}
	})

	t.Run("期限切れトークンで401が返ること", func(t *testing.T) {
		t.Parallel()

		w, _ := serveWithAuth("Bearer " + expiredToken(t))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["error"] != "トークンの有効期限が切れています" {
			t.Errorf("error = %q", body["error"])
		}
	})

	t.Run("不正なトークンで403が返ること", func(t *testing.T) {
		t.Parallel()

		w, _ := serveWithAuth("Bearer invalid-token-string")
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("Authorizationヘッダーが無い場合403が返ること", func(t *testing.T) {
		t.Parallel()

		w, _ := serveWithAuth("")
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("異なるシークレットで署名されたトークンで403が返ること", func(t *testing.T) {
		t.Parallel()

		tokenStr, _ := GenerateJWT("different-secret", "user-diff", time.Hour)
		w, _ := serveWithAuth("Bearer " + tokenStr)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestGetUserID はGetUserID関数を検証する。
func TestGetUserID(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストにuser_idが設定されている場合に取得できること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("user_id", "user-get-id")
		if got := GetUserID(c); got != "user-get-id" {
			t.Errorf("GetUserID() = %q, want %q", got, "user-get-id")
		}
	})

	t.Run("user_idが文字列以外の型の場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("user_id", 12345)
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty string", got)
		}
	})
}
