package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "responseMeta"

type responseMeta struct {
	started  time.Time
	cacheHit *bool
}

// WithResponseMeta stamps the request start so handlers can report timing and cache use.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now()})
		c.Next()
	}
}

func metaOf(c *gin.Context) *responseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if m, ok := v.(*responseMeta); ok {
			return m
		}
	}
	m := &responseMeta{started: time.Now()}
	c.Set(responseMetaKey, m)
	return m
}

// SetCacheHit records whether the response body came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c).cacheHit = &hit
}

// ExtractMeta renders the envelope meta: processing_time_ms and, when recorded, cache_hit.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	m := metaOf(c)
	out := map[string]interface{}{
		"processing_time_ms": time.Since(m.started).Milliseconds(),
	}
	if m.cacheHit != nil {
		out["cache_hit"] = *m.cacheHit
	}
	return out
}
