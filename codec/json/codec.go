package json

import (
	"bytes"
	"encoding/json"
	"iter"

	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec"
)

// Codec stores a batch as newline-delimited JSON values.
type Codec[Item any] struct {
	buf *bytes.Buffer
	enc *json.Encoder
}

var _ codec.Codec[any] = (*Codec[any])(nil)

func New[Item any]() *Codec[Item] {
	buf := new(bytes.Buffer)
	return &Codec[Item]{
		buf: buf,
		enc: json.NewEncoder(buf),
	}
}

func (c *Codec[Item]) Encode(batch iter.Seq[Item]) ([]byte, error) {
	c.buf.Reset()

	for item := range batch {
		if err := c.enc.Encode(item); err != nil {
			return nil, err
		}
	}

	return bytes.Clone(c.buf.Bytes()), nil
}

func (c *Codec[Item]) Decode(data []byte, dst buffer.Buffer[Item]) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	for dec.More() {
		var err error
		dst.PushInPlace(func(item *Item) bool {
			// JSON leaves fields missing from the input untouched, so the stale slot is zeroed.
			var zero Item
			*item = zero
			err = dec.Decode(item)
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Codec[Item]) Derive() codec.Codec[Item] {
	return New[Item]()
}
