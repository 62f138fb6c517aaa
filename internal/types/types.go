package types

import (
	"fmt"
	"path/filepath"
	"sync"
)

// A Buffer is vimoir's representation of a file open in the editor. The
// pathname and id never change once the Buffer has been created. The cursor
// fields are written by the reactor while handling events and may be read
// from other goroutines, hence the lock.
type Buffer struct {
	name string
	id   int

	mu         sync.Mutex
	registered bool

	// Line is the editor's line number of the cursor, i.e. 1-indexed
	line int

	// Col is the editor's column of the cursor, a 0-based byte index
	col int

	// offset is the 0-index byte-offset of the cursor in the buffer
	offset int
}

func NewBuffer(name string, id int) *Buffer {
	return &Buffer{
		name: name,
		id:   id,
		line: 1,
	}
}

// Name returns the absolute pathname of the buffer.
func (b *Buffer) Name() string {
	return b.name
}

// ID returns the netbeans buffer number. Buffer numbers start at one.
func (b *Buffer) ID() int {
	return b.id
}

// Basename returns the last element of the buffer pathname.
func (b *Buffer) Basename() string {
	return filepath.Base(b.name)
}

// Registered reports whether the editor has been told to track this buffer
// under its id.
func (b *Buffer) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered
}

func (b *Buffer) SetRegistered(v bool) {
	b.mu.Lock()
	b.registered = v
	b.mu.Unlock()
}

// Cursor returns the last known cursor position.
func (b *Buffer) Cursor() Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Point{Line: b.line, Col: b.col, Offset: b.offset}
}

// SetPosition records the line and column of the cursor.
func (b *Buffer) SetPosition(line, col int) {
	b.mu.Lock()
	b.line = line
	b.col = col
	b.mu.Unlock()
}

// SetOffset records the byte offset of the cursor.
func (b *Buffer) SetOffset(off int) {
	b.mu.Lock()
	b.offset = off
	b.mu.Unlock()
}

func (b *Buffer) String() string {
	p := b.Cursor()
	return fmt.Sprintf("%v:%v/%v", b.Basename(), p.Line, p.Col)
}

// Point represents a cursor position within a Buffer
type Point struct {
	// Line is 1-indexed
	Line int

	// Col is a 0-based byte index within the line
	Col int

	// Offset is the 0-index byte-offset within the buffer
	Offset int
}
