package storage

import "fmt"

// Pebble key schema. Prefix-based so owner-scoped queries are range scans,
// with creation time zero-padded into the order index for lexicographic
// time ordering.
//
//	ord:{orderID}                          -> order JSON
//	own:{owner}:{createdAtNanos}:{orderID} -> order id (index)
//	bal:{owner}:{asset}                    -> balance JSON
const (
	prefixOrder      = "ord:"
	prefixOwnerIndex = "own:"
	prefixBalance    = "bal:"
)

func orderKey(id string) []byte {
	return []byte(prefixOrder + id)
}

// ownerIndexKey orders entries by creation time; a reverse scan yields
// newest-first.
func ownerIndexKey(owner string, createdAtNanos int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOwnerIndex, owner, createdAtNanos, id))
}

func ownerIndexPrefix(owner string) []byte {
	return []byte(prefixOwnerIndex + owner + ":")
}

func balanceKey(owner, asset string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, owner, asset))
}

func balancePrefix(owner string) []byte {
	return []byte(prefixBalance + owner + ":")
}

func orderPrefix() []byte {
	return []byte(prefixOrder)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the last byte of the prefix.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
