package device

import (
	"fmt"
	"unsafe"

	"github.com/jittakal/edgeshuffle/pkg/device"
)

// Vector is a fixed-length array of device memory accounted by an Allocator.
type Vector[T any] struct {
	data  []T
	alloc device.Allocator
}

// NewVector allocates a zeroed vector of n elements.
func NewVector[T any](alloc device.Allocator, n int) (*Vector[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("negative vector length: %d", n)
	}
	if err := alloc.Reserve(bytesFor[T](n)); err != nil {
		return nil, err
	}
	return &Vector[T]{data: make([]T, n), alloc: alloc}, nil
}

// Adopt takes ownership of data as device memory, reserving its size.
func Adopt[T any](alloc device.Allocator, data []T) (*Vector[T], error) {
	if err := alloc.Reserve(bytesFor[T](len(data))); err != nil {
		return nil, err
	}
	if data == nil {
		data = []T{}
	}
	return &Vector[T]{data: data, alloc: alloc}, nil
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int {
	return len(v.data)
}

// Data returns the underlying elements.
func (v *Vector[T]) Data() []T {
	return v.data
}

// Resize changes the length to n, preserving the first min(Len, n) elements.
// Growing reserves the additional bytes; shrinking releases the tail.
func (v *Vector[T]) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("negative vector length: %d", n)
	}

	old := len(v.data)
	switch {
	case n == old:
		return nil
	case n > old:
		if err := v.alloc.Reserve(bytesFor[T](n - old)); err != nil {
			return err
		}
	default:
		v.alloc.Release(bytesFor[T](old - n))
	}

	data := make([]T, n)
	copy(data, v.data)
	v.data = data
	return nil
}

// Release frees the vector's memory. The vector is empty afterwards.
func (v *Vector[T]) Release() {
	v.alloc.Release(bytesFor[T](len(v.data)))
	v.data = []T{}
}

func bytesFor[T any](n int) int64 {
	var zero T
	return int64(unsafe.Sizeof(zero)) * int64(n)
}
