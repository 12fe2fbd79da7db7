package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/app/repository"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database/dbtest"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usercontext"
)

func newAuthApp(t *testing.T) (*fiber.App, string, *models.Account) {
	t.Helper()
	db := dbtest.New(t)
	repo := repository.NewAccountRepository(db)

	acc := &models.Account{Email: "keyholder@example.com"}
	raw, err := acc.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Create(acc).Error)

	app := fiber.New()
	app.Get("/me", APIKeyAuth(repo), RequireAPIAuth, func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetAccountContext(c))
	})
	app.Get("/open", RequireAPIAuth, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app, raw, acc
}

func TestAPIKeyAuth(t *testing.T) {
	app, raw, _ := newAuthApp(t)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", fiber.StatusUnauthorized},
		{"invalid", "X-API-Key", "ivk_nope", fiber.StatusUnauthorized},
		{"header", "X-API-Key", raw, fiber.StatusOK},
		{"bearer", "Authorization", "Bearer " + raw, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequireAPIAuthWithoutContext(t *testing.T) {
	app, _, _ := newAuthApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/open", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
