package spool_test

import (
	"context"
	"errors"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec"
	"github.com/cutoff-dev/common/codec/json"
	"github.com/cutoff-dev/common/internal/testing/require"
	"github.com/cutoff-dev/common/retry"
	"github.com/cutoff-dev/common/spool"
)

type Item struct {
	ID string
	N1 int
	N2 int
}

var Data = func() []Item {
	items := make([]Item, 0)
	for i := range 1000 {
		items = append(items, Item{
			ID: strconv.Itoa(i),
			N1: rand.IntN(1000),
			N2: rand.IntN(1000),
		})
	}
	return items
}()

func TestSpoolFlushBySize(t *testing.T) {
	run(t, func(t *testing.T) {
		processed := make(chan []Item, 1)

		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(len(Data))
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data)

		synctest.Wait()
		require.Equal(t, expect(t, processed), Data)
	})
}

func TestSpoolFlushByTimeout(t *testing.T) {
	run(t, func(t *testing.T) {
		const timeout = time.Hour
		processed := make(chan []Item, 1)

		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(len(Data) * 2)
			c.FlushTimeout(timeout)
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data)

		synctest.Wait()
		expectNone(t, processed)
		require.Equal(t, s.Stats().Staged, len(Data))

		time.Sleep(timeout)

		synctest.Wait()
		require.Equal(t, expect(t, processed), Data)
		require.Equal(t, s.Stats().Staged, 0)
	})
}

func TestSpoolManualFlush(t *testing.T) {
	run(t, func(t *testing.T) {
		processed := make(chan []Item, 1)

		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(len(Data) * 2)
			c.FlushTimeout(time.Hour)
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data)

		synctest.Wait()
		expectNone(t, processed)

		require.Nil(t, s.Flush(t.Context()))

		synctest.Wait()
		require.Equal(t, expect(t, processed), Data)

		// Nothing is staged, so there is nothing to process.
		require.Nil(t, s.Flush(t.Context()))
		synctest.Wait()
		expectNone(t, processed)
	})
}

func TestSpoolBufferReuse(t *testing.T) {
	run(t, func(t *testing.T) {
		const flushSize = 100
		processed := make(chan []Item, len(Data)/flushSize)

		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(flushSize)
			c.Capacity(10)
			c.Codec(json.New[Item]())
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data)
		synctest.Wait()

		var items []Item
		for range len(Data) / flushSize {
			items = append(items, expect(t, processed)...)
		}
		require.Equal(t, items, Data)

		// The staging buffer grew once to the flush size and was reused afterwards.
		stats := s.Stats()
		require.Equal(t, stats.BufferCapacity, flushSize)
		require.Equal(t, stats.AvgBatchSize, float64(flushSize))
		require.Equal(t, stats.Batches, 0)
		require.Equal(t, stats.Items, 0)
	})
}

func TestSpoolStats(t *testing.T) {
	run(t, func(t *testing.T) {
		const (
			flushSize = 100
			duration  = time.Second
		)
		release := make(chan struct{})

		s, err := spool.New(
			func(ctx context.Context, s *spool.Spool[Item], batch iter.Seq[Item]) error {
				select {
				case <-release:
				case <-ctx.Done():
					return ctx.Err()
				}
				time.Sleep(duration)
				return nil
			},
			func(c *spool.Config[Item]) {
				c.FlushSize(flushSize)
			},
		)
		require.Nil(t, err)
		deferClose(t, s)

		synctest.Wait()
		stats := s.Stats()
		require.Equal(t, stats, spool.Stats{BufferCapacity: flushSize})

		pushAll(t, s, Data)
		pushAll(t, s, Data[:5])
		synctest.Wait()

		stats = s.Stats()
		require.Equal(t, stats.Batches, len(Data)/flushSize)
		require.Equal(t, stats.Items, len(Data))
		require.Equal(t, stats.Staged, 5)
		require.Equal(t, stats.AvgBatchSize, float64(flushSize))
		require.Equal(t, stats.AvgProcessDuration, time.Duration(0))

		close(release)
		time.Sleep(duration * time.Duration(len(Data)/flushSize))
		synctest.Wait()

		stats = s.Stats()
		require.Equal(t, stats.Batches, 0)
		require.Equal(t, stats.Items, 0)
		require.Equal(t, stats.AvgProcessDuration, duration)
	})
}

func TestSpoolPushOnClose(t *testing.T) {
	file := filepath.Join(t.TempDir(), "spool.db")

	run(t, func(t *testing.T) {
		s, err := spool.New(
			func(ctx context.Context, s *spool.Spool[Item], batch iter.Seq[Item]) error {
				<-ctx.Done()
				// Pushing from the process function is accepted while the spool is closing.
				for item := range batch {
					item.N1 = -1
					if err := s.Push(ctx, item); err != nil {
						return err
					}
				}
				return nil
			},
			func(c *spool.Config[Item]) {
				c.File(spool.File(file))
				c.FlushSize(len(Data))
			},
		)
		require.Nil(t, err)

		pushAll(t, s, Data)
		synctest.Wait()

		require.Nil(t, s.Close())
		require.ErrorIs(t, s.Push(t.Context(), Item{}), spool.ErrClosed)
		require.ErrorIs(t, s.Flush(t.Context()), spool.ErrClosed)
		require.ErrorIs(t, s.Close(), spool.ErrClosed)
	})

	run(t, func(t *testing.T) {
		processed := make(chan []Item, 1)
		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.File(spool.File(file))
		})
		require.Nil(t, err)
		deferClose(t, s)

		synctest.Wait()
		items := expect(t, processed)
		require.Equal(t, len(items), len(Data))
		for i, item := range items {
			require.Equal(t, item.ID, Data[i].ID)
			require.Equal(t, item.N1, -1)
		}
	})
}

func TestSpoolConcurrentPushOnClose(t *testing.T) {
	const (
		pushers = 8
		enough  = 500
	)
	var (
		file      = filepath.Join(t.TempDir(), "spool.db")
		accepted  = make(map[string]bool)
		processed = make(map[string]bool)
	)
	var mu sync.Mutex
	process := func(ctx context.Context, s *spool.Spool[Item], batch iter.Seq[Item]) error {
		mu.Lock()
		defer mu.Unlock()
		for item := range batch {
			processed[item.ID] = true
		}
		return nil
	}

	run(t, func(t *testing.T) {
		s, err := spool.New(process, func(c *spool.Config[Item]) {
			c.File(spool.File(file))
			c.FlushSize(10)
		})
		require.Nil(t, err)

		var (
			wg     sync.WaitGroup
			once   sync.Once
			pushed atomic.Int64
		)
		started := make(chan struct{})
		for p := range pushers {
			wg.Go(func() {
				for i := 0; ; i++ {
					item := Item{ID: strconv.Itoa(p) + "-" + strconv.Itoa(i)}
					if err := s.Push(t.Context(), item); err != nil {
						if !errors.Is(err, spool.ErrClosed) {
							t.Errorf("push: %v", err)
						}
						return
					}
					mu.Lock()
					accepted[item.ID] = true
					mu.Unlock()
					if pushed.Add(1) == enough {
						once.Do(func() { close(started) })
					}
				}
			})
		}

		<-started
		require.Nil(t, s.Close())
		wg.Wait()
	})

	run(t, func(t *testing.T) {
		s, err := spool.New(process, func(c *spool.Config[Item]) {
			c.File(spool.File(file))
		})
		require.Nil(t, err)

		synctest.Wait()
		require.Nil(t, s.Close())
	})

	// Every accepted item reaches the storage, none is left in the push channel.
	require.True(t, len(accepted) >= enough)
	for id := range accepted {
		if !processed[id] {
			t.Fatalf("accepted item %s was lost", id)
		}
	}
}

func TestSpoolDataPersistenceBetweenRestarts(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "spool.db")

	run(t, func(t *testing.T) {
		s, err := spool.New(
			func(ctx context.Context, s *spool.Spool[Item], batch iter.Seq[Item]) error {
				<-ctx.Done()
				return ctx.Err()
			},
			func(c *spool.Config[Item]) {
				c.File(spool.File(file).Durable(true))
				c.FlushSize(len(Data) / 2)
			},
		)
		require.Nil(t, err)

		pushAll(t, s, Data)
		pushAll(t, s, Data[:1])
		synctest.Wait()

		require.Nil(t, s.Close())
	})

	run(t, func(t *testing.T) {
		processed := make(chan []Item, 3)
		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.File(spool.File(file))
			c.Batches(3)
		})
		require.Nil(t, err)
		deferClose(t, s)

		require.Equal(t, s.Stats().Batches, 3)
		require.Equal(t, s.Stats().Items, len(Data)+1)

		synctest.Wait()
		require.Equal(t, expect(t, processed), append(slices.Clone(Data), Data[0]))
	})
}

func TestSpoolMultipleWorkers(t *testing.T) {
	const (
		workers   = 10
		flushSize = 10
	)
	run(t, func(t *testing.T) {
		processed := make(chan []Item, len(Data)/flushSize)

		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.Workers(workers)
			c.FlushSize(flushSize)
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data)
		synctest.Wait()

		var items []Item
		for range len(Data) / flushSize {
			items = append(items, expect(t, processed)...)
		}
		slices.SortFunc(items, func(a, b Item) int {
			x, _ := strconv.Atoi(a.ID)
			y, _ := strconv.Atoi(b.ID)
			return x - y
		})
		require.Equal(t, items, Data)
	})
}

func TestSpoolProcessRetries(t *testing.T) {
	const (
		interval = time.Millisecond * 100
		cooldown = time.Millisecond * 500
		workers  = 10
	)
	run(t, func(t *testing.T) {
		processed := make(chan struct{}, workers)
		s, err := spool.New(
			func(ctx context.Context, s *spool.Spool[Item], batch iter.Seq[Item]) error {
				processed <- struct{}{}
				return errors.New("retry")
			},
			func(c *spool.Config[Item]) {
				c.Workers(workers)
				c.FlushSize(1)
				c.RetryPolicy(retry.Fixed(3, interval).WithJitter(0).WithCooldown(cooldown))
			},
		)
		require.Nil(t, err)
		deferClose(t, s)

		require.Nil(t, s.Push(t.Context(), Item{}))

		requireDelay := func(delay time.Duration) {
			t.Helper()
			start := time.Now()
			<-processed
			require.Equal(t, time.Since(start), delay)
		}

		requireDelay(0)
		for range 10 {
			requireDelay(interval)
			requireDelay(interval)
			requireDelay(cooldown)
		}
	})
}

func TestSpoolWorkerFailure(t *testing.T) {
	run(t, func(t *testing.T) {
		processed := make(chan []Item, 1)
		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(1)
			c.Codec(&corruptCodec{Codec: json.New[Item]()})
		})
		require.Nil(t, err)

		require.Nil(t, s.Push(t.Context(), Data[0]))
		synctest.Wait()

		expectNone(t, processed)
		require.ErrorIs(t, s.Push(t.Context(), Data[1]), spool.ErrClosed)

		err = s.Close()
		require.ErrorIs(t, err, spool.ErrClosed)
		require.ErrorIs(t, err, errCorrupt)
	})
}

func TestSpoolCustomBuffer(t *testing.T) {
	run(t, func(t *testing.T) {
		processed := make(chan []Item, 1)
		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(3)
			c.Buffer(buffer.Preallocated(3, func() Item { return Item{ID: "factory"} }))
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data[:3])
		synctest.Wait()
		require.Equal(t, expect(t, processed), Data[:3])
	})
}

func TestSpoolMergingBuffer(t *testing.T) {
	run(t, func(t *testing.T) {
		processed := make(chan []Item, 1)
		s, err := spool.New(collect(processed), func(c *spool.Config[Item]) {
			c.FlushSize(len(Data) * 2)
			c.Buffer(buffer.Merging(
				len(Data),
				func() Item { return Item{} },
				func(i Item) string { return i.ID },
				func(i1, i2 Item) Item { return Item{ID: i1.ID, N1: i1.N1 + i2.N1, N2: i1.N2 + i2.N2} },
			))
		})
		require.Nil(t, err)
		deferClose(t, s)

		pushAll(t, s, Data)
		pushAll(t, s, Data)
		synctest.Wait()
		require.Equal(t, s.Stats().Staged, len(Data))

		require.Nil(t, s.Flush(t.Context()))
		synctest.Wait()

		items := expect(t, processed)
		require.Equal(t, len(items), len(Data))
		for i, item := range items {
			require.Equal(t, item, Item{ID: Data[i].ID, N1: Data[i].N1 * 2, N2: Data[i].N2 * 2})
		}
	})
}

func TestSettings(t *testing.T) {
	dir := t.TempDir()

	t.Run("Load", func(t *testing.T) {
		path := filepath.Join(dir, "spool.yaml")
		writeFile(t, path, strings.Join([]string{
			"file: " + filepath.Join(dir, "spool.db"),
			"durable: true",
			"flush_size: 10",
			"flush_timeout: 1m30s",
			"workers: 4",
			"batches: 2",
			"capacity: 5",
		}, "\n"))

		settings, err := spool.LoadSettings(path)
		require.Nil(t, err)
		require.Equal(t, settings, spool.Settings{
			File:         filepath.Join(dir, "spool.db"),
			Durable:      true,
			FlushSize:    10,
			FlushTimeout: time.Minute + time.Second*30,
			Workers:      4,
			Batches:      2,
			Capacity:     5,
		})

		run(t, func(t *testing.T) {
			s, err := spool.New(
				func(context.Context, *spool.Spool[Item], iter.Seq[Item]) error { return nil },
				spool.WithSettings[Item](settings),
			)
			require.Nil(t, err)
			deferClose(t, s)

			synctest.Wait()
			require.Equal(t, s.Stats().BufferCapacity, 5)
		})
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := spool.LoadSettings(filepath.Join(dir, "missing.yaml"))
		require.NotNil(t, err)
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		writeFile(t, path, "workers: [1")
		_, err := spool.LoadSettings(path)
		require.NotNil(t, err)
	})

	t.Run("Invalid value", func(t *testing.T) {
		require.PanicWithError(t, "workers can't be < 1", func() {
			_, _ = spool.New(
				func(context.Context, *spool.Spool[Item], iter.Seq[Item]) error { return nil },
				spool.WithSettings[Item](spool.Settings{Workers: -1}),
			)
		})
	})
}

var errCorrupt = errors.New("corrupt batch")

// corruptCodec encodes batches that can't be decoded.
type corruptCodec struct {
	codec.Codec[Item]
}

func (c *corruptCodec) Decode([]byte, buffer.Buffer[Item]) error {
	return errCorrupt
}

func (c *corruptCodec) Derive() codec.Codec[Item] {
	return &corruptCodec{Codec: c.Codec.Derive()}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
}

func run(t *testing.T, fn func(t *testing.T)) {
	t.Helper()
	synctest.Test(t, fn)
}

func collect(processed chan<- []Item) spool.ProcessFunc[Item] {
	return func(ctx context.Context, s *spool.Spool[Item], batch iter.Seq[Item]) error {
		processed <- slices.Collect(batch)
		return nil
	}
}

func pushAll(t *testing.T, s *spool.Spool[Item], items []Item) {
	t.Helper()
	for _, item := range items {
		require.Nil(t, s.Push(t.Context(), item))
	}
}

func deferClose[Item any](t *testing.T, s *spool.Spool[Item]) {
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close spool: %v", err)
		}
	})
}

func expect[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	default:
		t.Fatal("channel is empty")
		panic("unreachable")
	}
}

func expectNone[T any](t *testing.T, ch chan T) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("channel is not empty")
	default:
	}
}
