package gob

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"iter"

	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec"
)

type Codec[Item any] struct {
	buf *bytes.Buffer
}

var _ codec.Codec[any] = (*Codec[any])(nil)

func New[Item any]() *Codec[Item] {
	return &Codec[Item]{
		buf: new(bytes.Buffer),
	}
}

func (c *Codec[Item]) Encode(batch iter.Seq[Item]) ([]byte, error) {
	c.buf.Reset()
	// Every batch is a self-contained gob stream, so the encoder isn't reused.
	enc := gob.NewEncoder(c.buf)

	for item := range batch {
		if err := enc.Encode(&item); err != nil {
			return nil, err
		}
	}

	return bytes.Clone(c.buf.Bytes()), nil
}

func (c *Codec[Item]) Decode(data []byte, dst buffer.Buffer[Item]) error {
	dec := gob.NewDecoder(bytes.NewReader(data))

	for {
		var err error
		ok := dst.PushInPlace(func(item *Item) bool {
			// Gob omits zero fields, so the stale slot is zeroed first.
			var zero Item
			*item = zero
			err = dec.Decode(item)
			return err == nil
		})
		if ok {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
}

func (c *Codec[Item]) Derive() codec.Codec[Item] {
	return New[Item]()
}
