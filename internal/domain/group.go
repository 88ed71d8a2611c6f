package domain

import (
	"regexp"
	"strings"
)

// basePattern matches the leading letters-then-digits run of a variant ID.
var basePattern = regexp.MustCompile(`^[A-Za-z]*\d+`)

// BaseID derives the block identifier from a variant ID by stripping the
// trailing variant letters: Q1a -> Q1, Q23c -> Q23. IDs without a
// recognizable prefix are returned unchanged.
func BaseID(variantID string) string {
	if m := basePattern.FindString(variantID); m != "" {
		return m
	}
	return variantID
}

// VariantLabel returns the uppercased variant suffix ("Q1a" -> "A"), or the
// empty string when the ID carries no suffix.
func VariantLabel(variantID string) string {
	base := BaseID(variantID)
	if len(variantID) > len(base) {
		return strings.ToUpper(variantID[len(base):])
	}
	return ""
}

// Label returns the item's uppercased variant suffix.
func (q QuestionItem) Label() string {
	return VariantLabel(q.VariantID)
}

// GroupItems partitions items into blocks keyed by base ID. The returned
// order lists each base ID at its first occurrence in the input; items keep
// their source order within a block.
func GroupItems(items []QuestionItem) ([]string, map[string]*Block) {
	order := make([]string, 0)
	blocks := make(map[string]*Block)
	for _, item := range items {
		base := BaseID(item.VariantID)
		b, ok := blocks[base]
		if !ok {
			b = &Block{BaseID: base}
			blocks[base] = b
			order = append(order, base)
		}
		b.Items = append(b.Items, item)
	}
	return order, blocks
}
