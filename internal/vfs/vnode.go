// Package vfs stands in for the VFS layer that the process/fd subsystem
// treats as an opaque collaborator (§1: "opaque vnode with open, close,
// read, write, stat, is_seekable, incref, decref"). This package supplies
// the interface and a small in-memory reference implementation (console
// device plus flat byte-slice files) so the rest of the module, and its
// tests, have something concrete to call without pulling in a real
// filesystem or device driver, both explicitly out of scope.
package vfs

import (
	"io"
	"sync"

	"github.com/justanotherdot/kernel161/internal/kerr"
)

// OpenFlags mirrors the O_* access-mode bits the syscall layer masks with
// O_ACCMODE.
type OpenFlags int

const (
	ORDONLY OpenFlags = iota
	OWRONLY
	ORDWR
)

const OACCMODE = 0x3

// Vnode is the opaque VFS object a FileHandle wraps.
type Vnode interface {
	Read(p []byte, offset int64) (n int, err error)
	Write(p []byte, offset int64) (n int, err error)
	Size() (int64, error)
	IsSeekable() bool
	Incref()
	Decref()
	Close() error
}

// FS is the minimal namespace operation the syscall layer needs: resolving
// a path to an openable vnode. The real VFS additionally handles lookup,
// mount points, and permissions; none of that is this subsystem's concern.
type FS interface {
	Open(path string, flags OpenFlags) (Vnode, error)
}

// MemFS is a reference FS: a flat map of path to in-memory byte buffer,
// plus a special "con:" path backed by an append-only in-memory buffer
// that read()/write() treat as non-seekable, mirroring Biscuit's console
// device.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memFile)}
}

func (m *MemFS) Open(path string, flags OpenFlags) (Vnode, error) {
	if path == "con:" {
		return &consoleVnode{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[path]
	if !ok {
		f = &memFile{}
		m.files[path] = f
	}
	f.refs++
	return &memFileVnode{file: f}, nil
}

// WriteFile seeds a path with initial content, for tests that need an
// N-byte file to seek/read against.
func (m *MemFS) WriteFile(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		f = &memFile{}
		m.files[path] = f
	}
	f.data = append([]byte(nil), data...)
}

type memFile struct {
	mu   sync.Mutex
	data []byte
	refs int
}

type memFileVnode struct {
	file *memFile
}

func (v *memFileVnode) Read(p []byte, offset int64) (int, error) {
	v.file.mu.Lock()
	defer v.file.mu.Unlock()
	if offset >= int64(len(v.file.data)) {
		return 0, io.EOF
	}
	n := copy(p, v.file.data[offset:])
	return n, nil
}

func (v *memFileVnode) Write(p []byte, offset int64) (int, error) {
	v.file.mu.Lock()
	defer v.file.mu.Unlock()
	end := offset + int64(len(p))
	if end > int64(len(v.file.data)) {
		grown := make([]byte, end)
		copy(grown, v.file.data)
		v.file.data = grown
	}
	n := copy(v.file.data[offset:end], p)
	return n, nil
}

func (v *memFileVnode) Size() (int64, error) {
	v.file.mu.Lock()
	defer v.file.mu.Unlock()
	return int64(len(v.file.data)), nil
}

func (v *memFileVnode) IsSeekable() bool { return true }

func (v *memFileVnode) Incref() {
	v.file.mu.Lock()
	defer v.file.mu.Unlock()
	v.file.refs++
}

func (v *memFileVnode) Decref() {
	v.file.mu.Lock()
	defer v.file.mu.Unlock()
	v.file.refs--
}

func (v *memFileVnode) Close() error { return nil }

// consoleVnode models Biscuit's "con:" device: unseekable, appends on
// write, returns nothing on read (no keyboard driver in this subsystem).
type consoleVnode struct {
	mu  sync.Mutex
	buf []byte
}

func (c *consoleVnode) Read(p []byte, _ int64) (int, error) {
	return 0, nil
}

func (c *consoleVnode) Write(p []byte, _ int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *consoleVnode) Size() (int64, error)  { return 0, kerr.ESPIPE }
func (c *consoleVnode) IsSeekable() bool      { return false }
func (c *consoleVnode) Incref()               {}
func (c *consoleVnode) Decref()               {}
func (c *consoleVnode) Close() error          { return nil }
