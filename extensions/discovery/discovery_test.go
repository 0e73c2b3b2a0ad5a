package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	t402 "github.com/t402-io/t402-go"
)

func TestEnrichDeclarationStampsTransport(t *testing.T) {
	decl := Declaration{
		Description: "hourly forecast",
		Input:       map[string]interface{}{"placement": "query"},
	}
	reqCtx := &t402.RequestContext{Method: "GET", Path: "/weather"}

	enriched := Extension.EnrichDeclaration(decl, reqCtx)
	out, ok := enriched.(Declaration)
	require.True(t, ok)
	assert.Equal(t, "GET", out.Input["method"])
	assert.Equal(t, "/weather", out.Input["path"])
	assert.Equal(t, "query", out.Input["placement"])
	// original declaration untouched
	assert.NotContains(t, decl.Input, "method")
}

func TestEnrichDeclarationPassesUnknownShapesThrough(t *testing.T) {
	raw := map[string]interface{}{"whatever": true}
	enriched := Extension.EnrichDeclaration(raw, &t402.RequestContext{Method: "GET"})
	assert.Equal(t, raw, enriched)
}

func TestEnrichDeclarationWithoutTransportContext(t *testing.T) {
	decl := Declaration{Description: "x"}
	enriched := Extension.EnrichDeclaration(decl, struct{}{})
	assert.Equal(t, decl, enriched)
}

func TestValidateDeclarationAcceptsGoodSchema(t *testing.T) {
	decl := Declaration{
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"city"},
		},
	}
	assert.NoError(t, ValidateDeclaration(decl))
}

func TestValidateDeclarationRejectsBadSchema(t *testing.T) {
	decl := Declaration{
		Schema: map[string]interface{}{"type": "not-a-real-type"},
	}
	assert.Error(t, ValidateDeclaration(decl))
}

func TestValidateInput(t *testing.T) {
	decl := Declaration{
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"city"},
		},
	}

	assert.NoError(t, ValidateInput(decl, map[string]interface{}{"city": "SF"}))
	assert.Error(t, ValidateInput(decl, map[string]interface{}{"zip": 94105}))
}

func TestExtensionKeyIsDiscovery(t *testing.T) {
	assert.Equal(t, "discovery", Extension.Key())
}
