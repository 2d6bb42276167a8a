package gob_test

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"testing"

	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec/gob"
	"github.com/cutoff-dev/common/internal/testing/require"
)

type Item struct {
	ID string
	N1 int
	N2 float64
}

func TestCodec(t *testing.T) {
	buffer := buffer.Preallocated(1000, func() Item { return Item{} })
	codec := gob.New[Item]()

	for range 2 {
		buffer.Clear()

		var items []Item
		for i := range 1000 {
			item := Item{
				ID: strconv.Itoa(i),
				N1: rand.IntN(1000),
				N2: rand.Float64() * 1000,
			}
			if i%10 == 0 {
				item.N1 = 0
			}
			items = append(items, item)
			buffer.Push(item)
		}

		data, err := codec.Encode(buffer.Iter())
		require.Nil(t, err)
		require.NotEqual(t, len(data), 0)

		buffer.Clear()

		err = codec.Decode(data, buffer)
		require.Nil(t, err)

		bufferItems := slices.Collect(buffer.Iter())
		require.Equal(t, bufferItems, items)
		require.Equal(t, buffer.Capacity(), 1000)
	}
}

func TestCodecDecodeError(t *testing.T) {
	codec := gob.New[Item]()
	buffer := buffer.Preallocated(1, func() Item { return Item{} })

	require.NotNil(t, codec.Decode([]byte{1, 2, 3}, buffer))
	require.Equal(t, buffer.Len(), 0)
}

func TestCodecDerive(t *testing.T) {
	codec := gob.New[Item]()
	require.NotNil(t, codec.Derive())
}
