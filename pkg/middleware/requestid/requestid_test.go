package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type seen struct {
	gin string
	ctx string
}

func serve(header string) (seen, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	var s seen
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		s = seen{gin: Value(c), ctx: FromContext(c.Request.Context())}
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(Header, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return s, w
}

func TestMiddlewareGeneratesID(t *testing.T) {
	s, w := serve("")

	_, err := uuid.Parse(s.gin)
	assert.NoError(t, err)
	assert.Equal(t, s.gin, s.ctx)
	assert.Equal(t, s.gin, w.Header().Get(Header))
}

func TestMiddlewareReusesClientID(t *testing.T) {
	s, _ := serve("trace-123")
	assert.Equal(t, "trace-123", s.gin)
	assert.Equal(t, "trace-123", s.ctx)
}

func TestMiddlewareReplacesUnsafeID(t *testing.T) {
	for _, id := range []string{strings.Repeat("x", 129), "evil\tvalue", "a b"} {
		s, _ := serve(id)
		assert.NotEqual(t, id, s.gin)
		_, err := uuid.Parse(s.gin)
		assert.NoError(t, err)
	}
}

func TestFromContextEmpty(t *testing.T) {
	assert.Equal(t, "", FromContext(context.Background()))
	assert.Equal(t, "abc", FromContext(WithID(context.Background(), "abc")))
	assert.Equal(t, "", Value(nil))
}
