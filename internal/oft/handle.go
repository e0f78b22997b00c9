// Package oft implements the system-wide open-file table and the
// FileHandle/FileDescriptor refcounting protocol (spec §4.3), grounded on
// original_source/kern/lib/fhandle.c and kern/include/fhandle.h.
package oft

import (
	"sync"
	"sync/atomic"

	"github.com/justanotherdot/kernel161/internal/kerr"
	"github.com/justanotherdot/kernel161/internal/table"
	"github.com/justanotherdot/kernel161/internal/vfs"
)

// FileHandle is the system-wide refcounted object wrapping a vnode, its
// access mode, and its shared seek offset (spec §3). offset and any
// vnode side effect that must observe the current offset are serialised
// by fhLock; refcount is protected separately so fh_inc/fh_dec never
// need to block on in-flight I/O.
type FileHandle struct {
	Vnode  vfs.Vnode
	Mode   vfs.OpenFlags
	offset int64

	refcount atomic.Uint32
	refLock  sync.Mutex
	fhLock   sync.Mutex
}

// FileDescriptor is one ownership share of a FileHandle, naming the slot
// it occupies in the open-file table.
type FileDescriptor struct {
	OFTIndex uint64
	Handle   *FileHandle
}

// Table is the open-file table: a Table[FileHandle] sized to the
// system-wide open-file cap (spec §4.3).
type Table struct {
	t *table.Table[FileHandle]
}

// NewTable returns an OFT pre-sized to capacity open-file slots.
func NewTable(capacity uint64) *Table {
	return &Table{t: table.NewSized[FileHandle](capacity)}
}

// NumOpen reports the current number of live handles (diagnostics).
func (ot *Table) NumOpen() uint64 {
	return ot.t.Num()
}

// Add opens path via fs, installs a fresh handle into the first free OFT
// slot, and returns a FileDescriptor holding the single initial
// reference. If the OFT is full, the freshly opened vnode is closed and
// ENFILE is returned (spec §4.3: "too many open files (system-wide)").
func (ot *Table) Add(fs vfs.FS, path string, flags vfs.OpenFlags) (*FileDescriptor, error) {
	vn, err := fs.Open(path, flags)
	if err != nil {
		return nil, err
	}

	fh := &FileHandle{
		Vnode: vn,
		Mode:  flags & vfs.OACCMODE,
	}
	fh.refcount.Store(1)

	index, err := ot.t.SetFirst(fh, 0)
	if err != nil {
		vn.Close()
		return nil, kerr.ENFILE
	}

	return &FileDescriptor{OFTIndex: index, Handle: fh}, nil
}

// Inc increments fd's handle refcount. Precondition: refcount >= 1.
func (ot *Table) Inc(fd *FileDescriptor) {
	fd.Handle.refLock.Lock()
	defer fd.Handle.refLock.Unlock()
	if fd.Handle.refcount.Load() == 0 {
		panic("oft: Inc called on a handle with refcount 0")
	}
	fd.Handle.refcount.Add(1)
}

// Dec decrements fd's handle refcount; when it reaches zero the handle is
// removed from the OFT, its vnode is closed, and the handle is
// discarded. A handle is present in the OFT iff refcount > 0.
func (ot *Table) Dec(fd *FileDescriptor) {
	fh := fd.Handle
	fh.refLock.Lock()
	if fh.refcount.Load() == 0 {
		fh.refLock.Unlock()
		panic("oft: Dec called on a handle with refcount 0")
	}
	remaining := fh.refcount.Add(^uint32(0))
	fh.refLock.Unlock()

	if remaining == 0 {
		ot.t.Remove(fd.OFTIndex)
		fh.Vnode.Close()
	}
}

// WithOffset runs fn under the handle's fhLock, passing the current
// offset and expecting the (possibly updated) offset back; fn's third
// return value, if non-nil, prevents the offset update (spec §4.5: "a
// failure from VOP propagates without updating the offset").
func (fh *FileHandle) WithOffset(fn func(offset int64) (newOffset int64, n int, err error)) (int, error) {
	fh.fhLock.Lock()
	defer fh.fhLock.Unlock()

	newOffset, n, err := fn(fh.offset)
	if err != nil {
		return n, err
	}
	fh.offset = newOffset
	return n, nil
}

// WithLock runs fn under fhLock, passing the current offset; fn's
// returned offset becomes the handle's new offset unless it returns an
// error, in which case the offset is left unchanged. Used by lseek,
// which has no vnode transfer to stage.
func (fh *FileHandle) WithLock(fn func(offset int64) (int64, error)) error {
	fh.fhLock.Lock()
	defer fh.fhLock.Unlock()

	newOffset, err := fn(fh.offset)
	if err != nil {
		return err
	}
	fh.offset = newOffset
	return nil
}

// Offset returns the handle's current offset under fhLock.
func (fh *FileHandle) Offset() int64 {
	fh.fhLock.Lock()
	defer fh.fhLock.Unlock()
	return fh.offset
}

// SetOffset sets the handle's offset under fhLock (lseek itself goes
// through WithLock).
func (fh *FileHandle) SetOffset(v int64) {
	fh.fhLock.Lock()
	defer fh.fhLock.Unlock()
	fh.offset = v
}

// Refcount reports the handle's current refcount (diagnostics/tests).
func (fh *FileHandle) Refcount() uint32 {
	return fh.refcount.Load()
}
