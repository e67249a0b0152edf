package normalize

import "strings"

// SKU normalizes a stock-keeping-unit string for index keys. An empty
// result means "no identifier" and must be excluded from indexing and
// matching.
func SKU(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// SKUVariants returns the variant set for a SKU: a single canonical form,
// or an empty set when the SKU is unusable.
func SKUVariants(raw string) []string {
	sku := SKU(raw)
	if sku == "" {
		return nil
	}
	return []string{sku}
}
