package t402

import (
	"context"
	"fmt"
)

// tripleKey identifies one (protocol version, network, scheme) capability.
type tripleKey struct {
	Version ProtocolVersion
	Network Network
	Scheme  string
}

// supportIndex is built once during lazy initialization by querying every
// attached facilitator's GetSupported. Earlier facilitators in the
// attachment list win ties, so multi-facilitator attachment stays
// deterministic.
type supportIndex struct {
	kinds        map[tripleKey]SupportedKind
	facilitators map[tripleKey]FacilitatorClient
	extensions   []string
}

func buildSupportIndex(ctx context.Context, facilitators []FacilitatorClient) (*supportIndex, error) {
	idx := &supportIndex{
		kinds:        make(map[tripleKey]SupportedKind),
		facilitators: make(map[tripleKey]FacilitatorClient),
	}
	seenExt := make(map[string]bool)
	for _, f := range facilitators {
		resp, err := f.GetSupported(ctx)
		if err != nil {
			return nil, fmt.Errorf("facilitator getSupported: %w", err)
		}
		for _, kind := range resp.Kinds {
			key := tripleKey{ProtocolVersion(kind.T402Version), kind.Network, kind.Scheme}
			if _, already := idx.facilitators[key]; already {
				continue // earlier facilitator in the list wins
			}
			idx.kinds[key] = kind
			idx.facilitators[key] = f
		}
		for _, ext := range resp.Extensions {
			if !seenExt[ext] {
				seenExt[ext] = true
				idx.extensions = append(idx.extensions, ext)
			}
		}
	}
	return idx, nil
}

// requirementBuilder converts a route's declared payment options into a
// PaymentRequired, delegating per-option parsing/enhancement to the
// registered server scheme handler.
type requirementBuilder struct {
	version          ProtocolVersion
	serverRegistry   *SchemeRegistry[SchemeNetworkServer]
	extensionByKey   map[string]ResourceExtension
	support          *supportIndex
}

func (b *requirementBuilder) build(ctx context.Context, route *RouteConfig, reqCtx *RequestContext, resourceURL string) (PaymentRequired, error) {
	accepts := make([]PaymentRequirements, 0, len(route.Options))

	for _, opt := range route.Options {
		handler, ok := b.serverRegistry.Lookup(b.version, opt.Network, opt.Scheme)
		if !ok {
			return PaymentRequired{}, NewPaymentError(ErrMissingScheme, fmt.Sprintf("%s/%s has no registered server handler", opt.Network, opt.Scheme))
		}

		key := tripleKey{b.version, opt.Network, opt.Scheme}
		kind, ok := b.support.kinds[key]
		if !ok {
			return PaymentRequired{}, NewPaymentError(ErrNoFacilitatorKind, fmt.Sprintf("no facilitator supports %s/%s", opt.Network, opt.Scheme))
		}

		amount, err := handler.ParsePrice(ctx, opt.Price, opt.Network)
		if err != nil {
			return PaymentRequired{}, err
		}

		payTo := opt.PayTo
		if payTo == nil {
			return PaymentRequired{}, NewPaymentError(ErrMissingScheme, "route option has no payTo resolver")
		}
		addr, err := payTo(reqCtx)
		if err != nil {
			return PaymentRequired{}, err
		}

		timeout := opt.MaxTimeoutSeconds
		if timeout == 0 {
			timeout = DefaultMaxTimeoutSeconds
		}

		extra := mergeExtra(amount.Extra, opt.Extra)

		base := PaymentRequirements{
			Scheme:            opt.Scheme,
			Network:           opt.Network,
			Asset:             amount.Asset,
			Amount:            amount.Amount,
			PayTo:             addr,
			MaxTimeoutSeconds: timeout,
			Resource:          resourceURL,
			Description:       opt.Description,
			MimeType:          opt.MimeType,
			Extra:             extra,
		}

		enhanced, err := handler.EnhancePaymentRequirements(ctx, base, kind, nil)
		if err != nil {
			return PaymentRequired{}, err
		}
		accepts = append(accepts, enhanced)
	}

	extensions := b.enrichExtensions(route, reqCtx)

	return PaymentRequired{
		T402Version: int(b.version),
		Resource: ResourceInfo{
			URL:         resourceURL,
			Description: firstNonEmpty(route.Options),
		},
		Accepts:    accepts,
		Extensions: extensions,
	}, nil
}

func (b *requirementBuilder) enrichExtensions(route *RouteConfig, reqCtx *RequestContext) map[string]interface{} {
	if len(route.Extensions) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(route.Extensions))
	for key, declaration := range route.Extensions {
		if ext, ok := b.extensionByKey[key]; ok {
			out[key] = ext.EnrichDeclaration(declaration, reqCtx)
		} else {
			out[key] = declaration
		}
	}
	return out
}

func mergeExtra(a, b map[string]interface{}) map[string]interface{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func firstNonEmpty(opts []ResourceConfig) string {
	for _, o := range opts {
		if o.Description != "" {
			return o.Description
		}
	}
	return ""
}

// validateRoutes runs once at initialization across every declared route,
// accumulating every configuration error into a single
// RouteConfigurationError instead of failing on the first.
func validateRoutes(routes []RouteConfig, version ProtocolVersion, serverRegistry *SchemeRegistry[SchemeNetworkServer], support *supportIndex) error {
	cfgErr := &RouteConfigurationError{}
	for _, route := range routes {
		if !route.requiresPayment() {
			continue
		}
		for _, opt := range route.Options {
			if _, ok := serverRegistry.Lookup(version, opt.Network, opt.Scheme); !ok {
				cfgErr.Add(route.Pattern, ErrMissingScheme, fmt.Sprintf("%s/%s", opt.Network, opt.Scheme))
				continue
			}
			key := tripleKey{version, opt.Network, opt.Scheme}
			if _, ok := support.kinds[key]; !ok {
				cfgErr.Add(route.Pattern, ErrMissingFacilitator, fmt.Sprintf("%s/%s", opt.Network, opt.Scheme))
			}
		}
	}
	if cfgErr.HasErrors() {
		return cfgErr
	}
	return nil
}
