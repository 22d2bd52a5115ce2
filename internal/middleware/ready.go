package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oldphotos/api/pkg/response"
)

// ReadyChecker reports whether the worker environment can run scripts.
type ReadyChecker interface {
	Ready() bool
}

// ReadyGate guards endpoints that would spawn workers. Until the bootstrap
// script has installed the environment they answer 503; read-only endpoints
// stay open so the UI can show setup progress.
type ReadyGate struct {
	probe ReadyChecker
}

func NewReadyGate(probe ReadyChecker) *ReadyGate {
	return &ReadyGate{probe: probe}
}

// RequireAIReady rejects the request while the environment is not ready.
func (g *ReadyGate) RequireAIReady() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !g.probe.Ready() {
			return response.NotReady(c, "AI environment is not ready")
		}
		return c.Next()
	}
}
