package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"offline-wallet/internal/core/ports"
	"offline-wallet/internal/core/ports/mocks"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func jwtRouter(tokenSvc ports.TokenService, captured *string) *gin.Engine {
	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, "U123", zerolog.Nop()), func(c *gin.Context) {
		if captured != nil {
			*captured = c.GetString(CtxWalletUID)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := jwtRouter(mocks.NewMockTokenService(ctrl), nil)

	for _, header := range []string{"", "Basic abc", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Contains(t, w.Body.String(), "SEC_004")
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad_token")
	w := httptest.NewRecorder()
	jwtRouter(tokenSvc, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_OtherWallet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("foreign").Return(&ports.TokenClaims{WalletUID: "U456", TokenID: "t1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer foreign")
	w := httptest.NewRecorder()
	jwtRouter(tokenSvc, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{WalletUID: "U123", TokenID: "t1"}, nil)

	var captured string
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "bearer good_token")
	w := httptest.NewRecorder()
	jwtRouter(tokenSvc, &captured).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "U123", captured)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		response.OK(c, nil)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		id := w.Header().Get(HeaderRequestID)
		require.NotEmpty(t, id)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, id, body["request_id"])
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	})

	t.Run("oversized replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", 100))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Len(t, w.Header().Get(HeaderRequestID), 36)
	})
}

func TestRecovery_PanicRecovered(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SYS_001", resp["error_code"])
}
