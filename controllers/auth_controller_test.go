package controller

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"globcrm/config"
	"globcrm/middleware"
	"globcrm/models"
)

func setupAuthTestApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.MigrateDB(db))

	config.DB = db
	config.AppConfig.JWTSecret = "auth-test-secret"

	app := fiber.New()
	app.Post("/auth/login", Login)
	app.Get("/auth/me", middleware.Protected(), GetCurrentUser)
	return app
}

func createLoginUser(t *testing.T, email, password string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	tenant := models.Tenant{Name: "Test Tenant", IsActive: true}
	require.NoError(t, config.DB.Create(&tenant).Error)
	user := models.User{
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Test User",
		IsActive:     true,
	}
	require.NoError(t, config.DB.Create(&user).Error)
}

func authCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "access_token" {
			return c
		}
	}
	return nil
}

func TestLoginSetsAuthCookie(t *testing.T) {
	app := setupAuthTestApp(t)
	createLoginUser(t, "user@example.com", "s3cret-pass")

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"user@example.com","password":"s3cret-pass"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := authCookie(t, resp)
	require.NotNil(t, cookie, "login must set the access_token cookie")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// A browser redirect carries only cookies, no Authorization header.
	// The protected group must accept it, or the OAuth callback can never
	// reach its handler.
	me := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	me.AddCookie(&http.Cookie{Name: "access_token", Value: cookie.Value})

	meResp, err := app.Test(me)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, meResp.StatusCode)
}

func TestProtectedRejectsMissingCredentials(t *testing.T) {
	app := setupAuthTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	app := setupAuthTestApp(t)
	createLoginUser(t, "user@example.com", "s3cret-pass")

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"user@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, authCookie(t, resp))
}
