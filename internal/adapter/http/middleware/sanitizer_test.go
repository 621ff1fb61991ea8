package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func echoBody(c *gin.Context) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusRequestEntityTooLarge, "too large")
		return
	}
	c.String(http.StatusOK, string(b))
}

func TestMaxBodySize(t *testing.T) {
	tests := []struct {
		name     string
		limit    int64
		body     string
		wantCode int
	}{
		{"under limit", 1024, "hello world", http.StatusOK},
		{"exact limit", 5, "12345", http.StatusOK},
		{"over limit", 16, strings.Repeat("A", 100), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(MaxBodySize(tt.limit))
			r.POST("/test", echoBody)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte(tt.body)))
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestMaxBodySize_NilBody(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodySize(1024))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
