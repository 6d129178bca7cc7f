package commerce

import (
	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// BuildRegistry wires the full commerce tool surface into a fresh registry
func BuildRegistry(catalog CatalogService, orders OrderService, info BusinessInfoService) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	for _, tool := range []tools.Tool{
		NewSearchProductsTool(catalog),
		NewCheckStockTool(catalog),
		NewBusinessInfoTool(info),
		NewViewCartTool(),
		NewAddToCartTool(catalog),
		NewCreateOrderTool(orders),
		NewRequestHandoffTool(),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, errors.Wrapf(err, "register %s", tool.Name())
		}
	}

	return registry, nil
}
