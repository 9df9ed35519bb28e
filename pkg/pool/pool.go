// Object pools for the parsing hot path
//
// A large G-code file is millions of lines; each linear move tokenizes its
// line and each arc produces a point list. Those short-lived slices come from
// these pools:
//
//	tokens := pool.GetStringSlice()
//	defer pool.PutStringSlice(tokens)
//
// Copyright (C) 2026 gcodeview authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Slices larger than these are dropped instead of pooled.
const (
	maxPooledStrings = 256
	maxPooledPoints  = 4096
	maxPooledBytes   = 64 * 1024
)

var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 16)
		return &s
	},
}

// GetStringSlice returns an empty string slice
func GetStringSlice() *[]string {
	s := stringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStringSlice returns s to the pool
func PutStringSlice(s *[]string) {
	if s == nil || cap(*s) > maxPooledStrings {
		return
	}
	clear(*s)
	*s = (*s)[:0]
	stringSlicePool.Put(s)
}

var pointSlicePool = sync.Pool{
	New: func() any {
		s := make([]mgl64.Vec3, 0, 64)
		return &s
	},
}

// GetPointSlice returns an empty point slice
func GetPointSlice() *[]mgl64.Vec3 {
	s := pointSlicePool.Get().(*[]mgl64.Vec3)
	*s = (*s)[:0]
	return s
}

// PutPointSlice returns s to the pool
func PutPointSlice(s *[]mgl64.Vec3) {
	if s == nil || cap(*s) > maxPooledPoints {
		return
	}
	*s = (*s)[:0]
	pointSlicePool.Put(s)
}

// ByteBuffer is an append-only buffer implementing io.Writer
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{buf: make([]byte, 0, 1024)}
	},
}

// GetByteBuffer returns an empty buffer
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutByteBuffer returns b to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil || cap(b.buf) > maxPooledBytes {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffered bytes; valid until the next write or Put
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Write appends p
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends c
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends s
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// Len returns the number of buffered bytes
func (b *ByteBuffer) Len() int {
	return len(b.buf)
}

// Reset empties the buffer, keeping capacity
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}
