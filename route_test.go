package t402

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoutePattern(t *testing.T) {
	method, path, wildcard := parseRoutePattern("GET /weather")
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/weather", path)
	assert.False(t, wildcard)

	method, path, wildcard = parseRoutePattern("/api/*")
	assert.Equal(t, "", method)
	assert.Equal(t, "/api", path)
	assert.True(t, wildcard)

	method, path, wildcard = parseRoutePattern("post /api/orders")
	assert.Equal(t, "POST", method)
	assert.Equal(t, "/api/orders", path)
	assert.False(t, wildcard)
}

func TestRouterExactBeatsWildcard(t *testing.T) {
	paid := ResourceConfig{Scheme: "exact", Network: "eip155:84532", Price: "$0.001", PayTo: StaticPayTo("0xA")}
	router := NewRouter(
		NewRouteConfig("/api/*", paid),
		NewRouteConfig("GET /api/weather", paid),
	)

	route, ok := router.Match("GET", "/api/weather")
	require.True(t, ok)
	assert.Equal(t, "GET /api/weather", route.Pattern)

	route, ok = router.Match("GET", "/api/anything/else")
	require.True(t, ok)
	assert.Equal(t, "/api/*", route.Pattern)
}

func TestRouterMethodFilter(t *testing.T) {
	paid := ResourceConfig{Scheme: "exact", Network: "eip155:84532", Price: "$0.001", PayTo: StaticPayTo("0xA")}
	router := NewRouter(NewRouteConfig("POST /orders", paid))

	_, ok := router.Match("GET", "/orders")
	assert.False(t, ok)
	_, ok = router.Match("POST", "/orders")
	assert.True(t, ok)
}

func TestRouterRequiresPayment(t *testing.T) {
	paid := ResourceConfig{Scheme: "exact", Network: "eip155:84532", Price: "$0.001", PayTo: StaticPayTo("0xA")}
	router := NewRouter(
		NewRouteConfig("/public"),
		NewRouteConfig("/paid", paid),
	)

	assert.False(t, router.RequiresPayment("GET", "/public"))
	assert.True(t, router.RequiresPayment("GET", "/paid"))
	assert.False(t, router.RequiresPayment("GET", "/unknown"))
}

func TestRouterNormalizesTrailingSlash(t *testing.T) {
	paid := ResourceConfig{Scheme: "exact", Network: "eip155:84532", Price: "$0.001", PayTo: StaticPayTo("0xA")}
	router := NewRouter(NewRouteConfig("/weather", paid))

	_, ok := router.Match("GET", "/weather/")
	assert.True(t, ok)
}
