// This package contains the main [Codec] interface and several implementations inside subpackages.
package codec

import (
	"iter"

	"github.com/cutoff-dev/common/buffer"
)

// Codec encodes and decodes batches of items for storage.
//
// Implementations are not considered thread-safe and each instance is used by a single worker.
type Codec[Item any] interface {
	// Encode serializes a sequence of items into a byte slice that the caller owns.
	Encode(batch iter.Seq[Item]) ([]byte, error)
	// Decode deserializes data and appends the items to dst. Items are decoded in place, into the
	// slots dst already holds.
	Decode(data []byte, dst buffer.Buffer[Item]) error
	// Derive returns a new Codec instance with the same settings.
	//
	// The returned codec maintains its own internal state independent of the original.
	Derive() Codec[Item]
}
