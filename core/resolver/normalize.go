package resolver

import "strings"

var apostrophes = strings.NewReplacer("'", "", "’", "")

// NormalizeLabel derives the canonical key of a label: apostrophes are
// removed, whitespace runs become a single underscore and letters are lowercased.
func NormalizeLabel(label string) string {
	label = apostrophes.Replace(label)
	return strings.ToLower(strings.Join(strings.Fields(label), "_"))
}

// NormalizeRelation normalizes a relation type like a label and also
// treats hyphens as separators.
func NormalizeRelation(relation string) string {
	return NormalizeLabel(strings.ReplaceAll(relation, "-", " "))
}
