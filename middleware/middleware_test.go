package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(), CORS())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/add_point", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func TestCORSPreflight(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/add_point", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSHeadersOnRegularRequest(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/add_point", nil))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("missing Access-Control-Allow-Methods")
	}
}

func TestIsHealthPath(t *testing.T) {
	cases := map[string]bool{
		"/health":      true,
		"/api/health":  true,
		"/api/upload":  false,
		"/healthcheck": false,
	}
	for route, want := range cases {
		if got := isHealthPath(route); got != want {
			t.Errorf("isHealthPath(%q) = %v, want %v", route, got, want)
		}
	}
}
