package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

var (
	corsMethods = []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions, fiber.MethodHead}
	// Mcp-Session-Id travels on the streamable tool endpoint.
	corsAllowHeaders  = []string{"Origin", "Content-Type", "Accept", "X-Trace-ID", "X-Request-ID", "Mcp-Session-Id"}
	corsExposeHeaders = []string{"X-Trace-ID", "X-Request-ID", "Mcp-Session-Id"}
)

// CORSWithOrigins lets browsers call the query routes from the listed
// origins, or from anywhere when the list is empty.
func CORSWithOrigins(origins []string) fiber.Handler {
	allow := "*"
	if len(origins) > 0 {
		allow = strings.Join(origins, ",")
	}
	return cors.New(cors.Config{
		AllowOrigins:  allow,
		AllowMethods:  strings.Join(corsMethods, ","),
		AllowHeaders:  strings.Join(corsAllowHeaders, ","),
		ExposeHeaders: strings.Join(corsExposeHeaders, ","),
		MaxAge:        86400,
	})
}
