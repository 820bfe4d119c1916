package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication and tenant resolution. The respond
// endpoint is authenticated by its single-use token instead of a bearer token.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// tenantPublicPaths skip authentication but still need a tenant connection.
var tenantPublicPaths = map[string]bool{
	"/api/v1/connection-requests/respond": true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()] || tenantPublicPaths[c.Path()]
}

// IsPublicPath reports whether the path bypasses both auth and tenant middleware.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
