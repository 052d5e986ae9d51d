package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("s3cret")
	r := gin.New()
	r.GET("/admin", RequireAdmin(secret), func(c *gin.Context) { c.String(http.StatusOK, c.GetString("admin_subject")) })

	admin, err := Issue(secret, "ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	farmer, err := Issue(secret, "u1", "farmer", time.Hour)
	require.NoError(t, err)
	expired, err := Issue(secret, "ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	forged, err := Issue([]byte("other"), "ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		want   int
	}{
		"admin":   {"Bearer " + admin, http.StatusOK},
		"missing": {"", http.StatusUnauthorized},
		"role":    {"Bearer " + farmer, http.StatusUnauthorized},
		"expired": {"Bearer " + expired, http.StatusUnauthorized},
		"forged":  {"Bearer " + forged, http.StatusUnauthorized},
		"scheme":  {"Basic " + admin, http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}

func TestRequireAdmin_EmptySecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireAdmin(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	tok, _ := Issue([]byte(""), "ops", RoleAdmin, time.Hour)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
