// Package configs embeds the built-in index mappings so they ship with the
// function source and the binary alike. config.yaml next to it is the sample
// configuration loaded by default.
package configs

import _ "embed"

// ProductsMapping is the Elasticsearch mapping for the all_products index.
//
//go:embed all_products.mapping.json
var ProductsMapping []byte
