package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestExtractMeta(t *testing.T) {
	var withHit, without map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/hit", func(c *gin.Context) {
		SetCacheHit(c, true)
		withHit = ExtractMeta(c)
	})
	r.GET("/plain", func(c *gin.Context) {
		without = ExtractMeta(c)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/hit", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	assert.Equal(t, true, withHit["cache_hit"])
	assert.Contains(t, withHit, "processing_time_ms")
	assert.NotContains(t, without, "cache_hit")
	assert.Contains(t, without, "processing_time_ms")
}
