// Package extractors imports all extractor packages to trigger their
// init() registration. Import this package for side effects only.
package extractors

import (
	// Import all extractor packages to register them with the registry.
	_ "shipment_parser/internal/extractors/columns"
	_ "shipment_parser/internal/extractors/freetext"
)
