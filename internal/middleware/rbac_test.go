package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/models"
)

func rbacRouter(claims *models.JWTClaims, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	})
	router.GET("/users/:id", RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRBACAllowsListedRole(t *testing.T) {
	router := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleAdministrator}, string(models.RoleAdministrator))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users/u2", nil))

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRBACRejectsOtherRoles(t *testing.T) {
	// Roles are flat: a lecturer is not implicitly a student and vice versa.
	router := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, string(models.RoleLecturer))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users/u2", nil))

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRBACSelfAccess(t *testing.T) {
	router := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, string(models.RoleAdministrator), "SELF")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected self access, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users/other", nil))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for other user, got %d", recorder.Code)
	}
}

func TestRBACRequiresAuthentication(t *testing.T) {
	router := rbacRouter(nil, string(models.RoleAdministrator))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users/u1", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
