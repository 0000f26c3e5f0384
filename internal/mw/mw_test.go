package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Other clients have their own bucket.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1, time.Minute)
	assert.Same(t, l.GetLimiter("a"), l.GetLimiter("a"))
	assert.NotSame(t, l.GetLimiter("a"), l.GetLimiter("b"))
}

func TestCacheAndInvalidate(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	hits := 0

	r := gin.New()
	r.GET("/items", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/items", Invalidate(store), func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/fail", Invalidate(store), func(c *gin.Context) { c.Status(http.StatusConflict) })

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/items", nil)
		r.ServeHTTP(w, req)
		return w
	}
	post := func(path string) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, path, nil)
		r.ServeHTTP(w, req)
	}

	assert.JSONEq(t, `{"hits":1}`, get().Body.String())
	second := get()
	assert.JSONEq(t, `{"hits":1}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))

	post("/fail")
	assert.JSONEq(t, `{"hits":1}`, get().Body.String(), "failed writes keep the cache")

	post("/items")
	assert.JSONEq(t, `{"hits":2}`, get().Body.String())
}

func TestCache_KeyAndBypass(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	hits := 0

	r := gin.New()
	r.GET("/events", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})

	get := func(target string, header http.Header) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, target, nil)
		for k, v := range header {
			req.Header[k] = v
		}
		r.ServeHTTP(w, req)
		return w
	}

	first := get("/events?date=2024-06-01&page=1", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	reordered := get("/events?page=1&date=2024-06-01", nil)
	assert.Equal(t, "HIT", reordered.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", reordered.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hits":1}`, reordered.Body.String())

	bypassed := get("/events?date=2024-06-01&page=1", http.Header{"Cache-Control": {"no-cache"}})
	assert.JSONEq(t, `{"hits":2}`, bypassed.Body.String())

	assert.JSONEq(t, `{"hits":2}`, get("/events?date=2024-06-01&page=1", nil).Body.String(), "a bypass refreshes the entry")
}
