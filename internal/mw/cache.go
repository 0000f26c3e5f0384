package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// snapshot is a captured response body with the headers clients need to
// decode it.
type snapshot struct {
	status      int
	contentType string
	body        []byte
}

// recorder tees the response body into a buffer while it is written out.
type recorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// cacheKey normalizes the query so ?a=1&b=2 and ?b=2&a=1 share an entry.
func cacheKey(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

// Cache serves repeated GET requests from store for ttl. Clients can bypass
// it with Cache-Control: no-cache.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		bypass := strings.Contains(c.GetHeader("Cache-Control"), "no-cache")
		if v, found := store.Get(key); found && !bypass {
			snap := v.(snapshot)
			c.Header("X-Cache", "HIT")
			c.Data(snap.status, snap.contentType, snap.body)
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header("X-Cache", "MISS")
		c.Next()

		if rec.Status() == http.StatusOK {
			store.Set(key, snapshot{
				status:      rec.Status(),
				contentType: rec.Header().Get("Content-Type"),
				body:        rec.buf.Bytes(),
			}, ttl)
		}
	}
}

// Invalidate drops every cached response once an HTTP write succeeds.
// Background imports flush the same store through the fetcher.
func Invalidate(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() < http.StatusBadRequest {
			store.Flush()
		}
	}
}
