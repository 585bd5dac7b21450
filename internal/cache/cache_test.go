package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/compassplan/compass/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)

	c.Set("tenant-a", "key1", []byte("hello"))

	data, found := c.Get("key1")
	require.True(t, found)
	assert.Equal(t, []byte("hello"), data)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)

	c.Set("tenant-a", "key1", []byte("hello"))
	time.Sleep(20 * time.Millisecond)

	_, found := c.Get("key1")
	assert.False(t, found)
}

func TestInvalidateTenant(t *testing.T) {
	c := NewCache(time.Minute)

	c.Set("tenant-a", "a1", []byte("1"))
	c.Set("tenant-a", "a2", []byte("2"))
	c.Set("tenant-b", "b1", []byte("3"))

	c.InvalidateTenant("tenant-a")

	_, found := c.Get("a1")
	assert.False(t, found)
	_, found = c.Get("a2")
	assert.False(t, found)

	// Other tenants keep their entries.
	data, found := c.Get("b1")
	require.True(t, found)
	assert.Equal(t, []byte("3"), data)

	stats := c.Stats()
	assert.Equal(t, 1, stats["tenants"])
}

func TestMiddlewareCachesGetResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()

	calls := 0
	router := gin.New()
	router.Use(c.Middleware(metrics, func(ctx *gin.Context) string { return "tenant-a" }))
	router.GET("/data", func(ctx *gin.Context) {
		calls++
		ctx.JSON(http.StatusOK, gin.H{"value": calls})
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/data", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/data", nil))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestMiddlewareSkipsWrites(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()

	calls := 0
	router := gin.New()
	router.Use(c.Middleware(metrics, func(ctx *gin.Context) string { return "tenant-a" }))
	router.POST("/data", func(ctx *gin.Context) {
		calls++
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/data", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Size())
}
