package msgp

import (
	"bytes"
	"iter"

	"github.com/tinylib/msgp/msgp"

	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec"
)

// Codec stores a batch as concatenated MessagePack values. Item types are expected to have their
// methods generated by the msgp tool.
type Codec[Item any, ItemPtr msgpable[Item]] struct {
	buf []byte
}

var _ codec.Codec[msgp.Raw] = (*Codec[msgp.Raw, *msgp.Raw])(nil)

func New[Item any, ItemPtr msgpable[Item]]() *Codec[Item, ItemPtr] {
	return &Codec[Item, ItemPtr]{
		buf: make([]byte, 0),
	}
}

func (c *Codec[Item, ItemPtr]) Encode(batch iter.Seq[Item]) ([]byte, error) {
	c.buf = c.buf[:0]
	for item := range batch {
		b, err := ItemPtr(&item).MarshalMsg(c.buf)
		if err != nil {
			return nil, err
		}
		c.buf = b
	}

	return bytes.Clone(c.buf), nil
}

func (c *Codec[Item, ItemPtr]) Decode(data []byte, dst buffer.Buffer[Item]) error {
	for len(data) > 0 {
		var (
			rest []byte
			err  error
		)
		ok := dst.PushInPlace(func(item *Item) bool {
			var zero Item
			*item = zero
			rest, err = ItemPtr(item).UnmarshalMsg(data)
			return err == nil
		})
		if !ok {
			return err
		}
		data = rest
	}

	return nil
}

func (c *Codec[Item, ItemPtr]) Derive() codec.Codec[Item] {
	return New[Item, ItemPtr]()
}

type msgpable[Item any] interface {
	*Item
	msgp.Marshaler
	msgp.Unmarshaler
}
