package storage

import (
	"fmt"
)

// Key schema:
//
//	tx:{network}:{authority}:{unixnano}:{id} → Entry (JSON)
//	sel:{network}:{authority}               → selected sub-account id
//
// unixnano is zero-padded to 20 digits so keys sort by time.
const (
	prefixTx        = "tx:"
	prefixSelection = "sel:"
)

// txKey returns the key for a journal entry
func txKey(network, authority string, unixNano int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%s", prefixTx, network, authority, unixNano, id))
}

// txPrefix returns the prefix for all entries of one wallet on one network
func txPrefix(network, authority string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixTx, network, authority))
}

// selectionKey returns the key holding the remembered selection
func selectionKey(network, authority string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixSelection, network, authority))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
