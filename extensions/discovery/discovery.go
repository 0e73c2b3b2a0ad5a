// Package discovery is the shipped resource-server extension: it lets a
// route declare how its gated resource is called (input placement, JSON
// Schemas for input and output) and enriches that declaration with the
// request's transport specifics before the 402 challenge goes out. Catalog
// persistence is a facilitator concern and lives outside this module.
package discovery

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Key is the extensions-map key this extension owns.
const Key = "discovery"

// Declaration is a route's discovery metadata as declared in its
// RouteConfig extensions.
type Declaration struct {
	Description string                 `json:"description,omitempty"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
}

// TransportContext is satisfied structurally by the core's RequestContext;
// the extension never depends on a concrete HTTP package.
type TransportContext interface {
	TransportMethod() string
	TransportPath() string
}

type extension struct{}

// Extension is the ResourceExtension to register on the gate.
var Extension = &extension{}

func (e *extension) Key() string { return Key }

// EnrichDeclaration stamps the request's method and path onto the declared
// input so a catalog reader knows how to call the resource. Declarations of
// any other shape pass through verbatim.
func (e *extension) EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{} {
	tc, ok := transportContext.(TransportContext)
	if !ok {
		return declaration
	}
	decl, ok := declaration.(Declaration)
	if !ok {
		if p, ok := declaration.(*Declaration); ok {
			decl = *p
		} else {
			return declaration
		}
	}

	input := make(map[string]interface{}, len(decl.Input)+2)
	for k, v := range decl.Input {
		input[k] = v
	}
	input["method"] = tc.TransportMethod()
	input["path"] = tc.TransportPath()
	decl.Input = input
	return decl
}

// ValidateDeclaration checks that a declared schema is itself a loadable
// JSON Schema. Run it at route-configuration time; a bad schema there is a
// config bug, not something to discover per request.
func ValidateDeclaration(decl Declaration) error {
	if decl.Schema == nil {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(decl.Schema)); err != nil {
		return fmt.Errorf("discovery schema does not compile: %w", err)
	}
	return nil
}

// ValidateInput checks a candidate input document against the declared
// schema, returning the validator's reasons when it does not conform.
func ValidateInput(decl Declaration, input interface{}) error {
	if decl.Schema == nil {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(decl.Schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return err
	}
	if !result.Valid() {
		return fmt.Errorf("input does not conform to declared schema: %v", result.Errors())
	}
	return nil
}
