package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRateLimiterRefills(t *testing.T) {
	c := newClock()
	rl := NewRateLimiter(2, time.Minute)
	rl.now = c.now
	rl.lastTime = c.now()

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	c.advance(31 * time.Second)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	c.advance(10 * time.Minute)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "capacity caps the refill")
}

func TestDeduplicatorWindow(t *testing.T) {
	c := newClock()
	d := NewDeduplicator(time.Second)
	defer d.Close()
	d.now = c.now

	assert.False(t, d.seenRecently("a"))
	assert.True(t, d.seenRecently("a"))
	assert.False(t, d.seenRecently("b"))

	c.advance(2 * time.Second)
	assert.False(t, d.seenRecently("a"))
	assert.Equal(t, 1, d.cleanup())
}

func TestDeduplicatorMiddlewarePreservesBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := NewDeduplicator(time.Minute)
	defer d.Close()

	var got string
	r := gin.New()
	r.Use(d.Middleware())
	r.POST("/x", func(c *gin.Context) {
		b, err := c.GetRawData()
		require.NoError(t, err)
		got = string(b)
		c.Status(http.StatusNoContent)
	})
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(method, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, "/x", strings.NewReader(body)))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send(http.MethodPost, `{"a":1}`))
	assert.Equal(t, `{"a":1}`, got)
	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, `{"a":1}`))
	assert.Equal(t, http.StatusNoContent, send(http.MethodPost, `{"a":2}`))
	assert.Equal(t, http.StatusNoContent, send(http.MethodGet, ""))
	assert.Equal(t, http.StatusNoContent, send(http.MethodGet, ""))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
