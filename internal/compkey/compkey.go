// Package compkey builds and parses the composite keys that embed the item
// hierarchy into a single DynamoDB table.
package compkey

import "strings"

// Separator joins the type and id components of a composite key.
const Separator = "#"

// PartitionKey computes the partition key addressing an item's parent node.
// An explicit parent pair wins; otherwise the item's own type+id is used
// (needed when an item addresses itself, e.g. for delete-key reconstruction);
// otherwise the key falls back to the owner's synthetic root, USER#owner.
// The precedence order is fixed.
func PartitionKey(typ, id, parentType, parentID, owner string) string {
	if parentType != "" && parentID != "" {
		return strings.ToUpper(parentType) + Separator + parentID
	}
	if typ != "" && id != "" {
		return strings.ToUpper(typ) + Separator + id
	}
	return "USER" + Separator + owner
}

// SortKey computes the key identifying an item within its parent's partition.
// With an id it is UPPER(typ)#id, unless that string equals pk: then the key
// collapses to bare UPPER(typ), so the identity index still yields a single
// exact match for an item that is its own root-equivalent entry. Without an
// id the bare type is returned (used for type-prefix range conditions).
func SortKey(typ, id, pk string) string {
	typeKey := strings.ToUpper(typ)
	if id == "" {
		return typeKey
	}
	sk := typeKey + Separator + id
	if pk != "" && pk == sk {
		return typeKey
	}
	return sk
}

// Parse splits a composite key on the first separator. The returned id is
// empty when the key carried no separator. Parse inverts the non-collapsed
// encode form exactly; uppercasing of the type component is one-way, so
// original mixed-case type names do not round-trip.
func Parse(key string) (typ, id string) {
	typ, id, _ = strings.Cut(key, Separator)
	return typ, id
}
