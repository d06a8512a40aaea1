package edgelist

import (
	internaldevice "github.com/jittakal/edgeshuffle/internal/device"
	"github.com/jittakal/edgeshuffle/pkg/device"
)

// chunked is the type-independent view of one attribute buffer.
type chunked interface {
	grow(alloc device.Allocator, capacity int) error
	dropLast()
	trim(n int) error
	merge(stream device.Stream) error
	dropTail()
	lengths() []int
	release()
}

// column is the attribute buffer of one edge attribute: an ordered sequence
// of chunks of which only the last may be partially filled.
type column[T any] struct {
	chunks []*internaldevice.Vector[T]
}

func (c *column[T]) grow(alloc device.Allocator, capacity int) error {
	v, err := internaldevice.NewVector[T](alloc, capacity)
	if err != nil {
		return err
	}
	c.chunks = append(c.chunks, v)
	return nil
}

func (c *column[T]) dropLast() {
	last := len(c.chunks) - 1
	c.chunks[last].Release()
	c.chunks = c.chunks[:last]
}

// slot returns the n destination elements at pos in the last chunk.
func (c *column[T]) slot(pos, n int) []T {
	return c.chunks[len(c.chunks)-1].Data()[pos : pos+n]
}

// trim shrinks the last chunk to n elements.
func (c *column[T]) trim(n int) error {
	return c.chunks[len(c.chunks)-1].Resize(n)
}

// merge grows the first chunk to the total length and enqueues copies of
// every later chunk behind it in chunk order. The later chunks stay alive
// until dropTail, which must follow a stream drain.
func (c *column[T]) merge(stream device.Stream) error {
	if len(c.chunks) < 2 {
		return nil
	}

	first := c.chunks[0]
	offset := first.Len()
	if err := first.Resize(c.total()); err != nil {
		return err
	}

	for _, chunk := range c.chunks[1:] {
		internaldevice.CopyAsync(stream, first.Data()[offset:offset+chunk.Len()], chunk.Data())
		offset += chunk.Len()
	}
	return nil
}

func (c *column[T]) dropTail() {
	for _, chunk := range c.chunks[1:] {
		chunk.Release()
	}
	c.chunks = c.chunks[:1]
}

// replace discards every chunk and installs data as the only chunk.
func (c *column[T]) replace(alloc device.Allocator, data []T) error {
	c.release()
	v, err := internaldevice.Adopt(alloc, data)
	if err != nil {
		return err
	}
	c.chunks = []*internaldevice.Vector[T]{v}
	return nil
}

func (c *column[T]) views() [][]T {
	out := make([][]T, len(c.chunks))
	for i, chunk := range c.chunks {
		out[i] = chunk.Data()
	}
	return out
}

func (c *column[T]) lengths() []int {
	out := make([]int, len(c.chunks))
	for i, chunk := range c.chunks {
		out[i] = chunk.Len()
	}
	return out
}

func (c *column[T]) total() int {
	n := 0
	for _, chunk := range c.chunks {
		n += chunk.Len()
	}
	return n
}

// contiguous returns the column as one slice, copying only when there are several chunks.
func (c *column[T]) contiguous() []T {
	if len(c.chunks) == 1 {
		return c.chunks[0].Data()
	}
	out := make([]T, 0, c.total())
	for _, chunk := range c.chunks {
		out = append(out, chunk.Data()...)
	}
	return out
}

func (c *column[T]) release() {
	for _, chunk := range c.chunks {
		chunk.Release()
	}
	c.chunks = nil
}
