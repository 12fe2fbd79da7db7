package apiv1

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubServer struct{}

func ok(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

func (stubServer) GetPing(c *fiber.Ctx) error                    { return c.JSON(Pong{Ping: "pong"}) }
func (stubServer) GetQuota(c *fiber.Ctx) error                   { return ok(c) }
func (stubServer) ListVerifications(c *fiber.Ctx) error          { return ok(c) }
func (stubServer) CreateVerification(c *fiber.Ctx) error         { return ok(c) }
func (stubServer) GetVerification(c *fiber.Ctx) error            { return ok(c) }
func (stubServer) CancelVerification(c *fiber.Ctx) error         { return ok(c) }
func (stubServer) ListUsage(c *fiber.Ctx) error                  { return ok(c) }
func (stubServer) CreateSubscriptionCheckout(c *fiber.Ctx) error { return ok(c) }
func (stubServer) CreatePaymentCheckout(c *fiber.Ctx) error      { return ok(c) }
func (stubServer) CreatePortalSession(c *fiber.Ctx) error        { return ok(c) }

func denyAll(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

func newStubApp() *fiber.App {
	app := fiber.New()
	RegisterHandlers(app.Group("/api/v1"), stubServer{}, denyAll)
	return app
}

func TestRoutesMatchOpenAPIDocument(t *testing.T) {
	doc, err := LoadSpec(context.Background(), "../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)

	app := newStubApp()
	assert.Empty(t, Undocumented(doc, app.GetRoutes(true), "/api/v1"))
}

func TestUndocumentedReportsMissingRoutes(t *testing.T) {
	doc, err := LoadSpec(context.Background(), "../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)

	app := newStubApp()
	app.Delete("/api/v1/verifications/:id", ok)
	assert.Equal(t, []string{"DELETE /verifications/:id"}, Undocumented(doc, app.GetRoutes(true), "/api/v1"))
}

func TestPingIsPublicAndRestIsGuarded(t *testing.T) {
	app := newStubApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	for _, r := range []struct{ method, path string }{
		{"GET", "/api/v1/quota"},
		{"POST", "/api/v1/verifications"},
		{"POST", "/api/v1/verifications/7/cancel"},
		{"POST", "/api/v1/billing/portal"},
	} {
		resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, r.path)
	}
}

func TestLoadSpecMissingFile(t *testing.T) {
	_, err := LoadSpec(context.Background(), "does-not-exist.yml")
	assert.Error(t, err)
}
