package syscall

import (
	"io"

	"github.com/justanotherdot/kernel161/internal/kerr"
	"github.com/justanotherdot/kernel161/internal/oft"
	"github.com/justanotherdot/kernel161/internal/proc"
	"github.com/justanotherdot/kernel161/internal/vfs"
)

// Seek whence values, aliased onto io's so callers don't need to learn a
// parallel vocabulary.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// Open implements spec §4.5's open: scan fds for a free slot (EMFILE if
// none and already at OpenMax), open the vnode, and install.
func (k *Kernel) Open(p *proc.Process, path string, flags vfs.OpenFlags) (fd int, err error) {
	fd = -1
	p.MainlockDo(func() {
		slot := -1
		for i, d := range p.FDs {
			if d == nil {
				slot = i
				break
			}
		}
		if slot == -1 && len(p.FDs) >= k.Limits.OpenMax {
			err = kerr.EMFILE
			return
		}

		descr, openErr := k.OFT.Add(k.FS, path, flags)
		if openErr != nil {
			err = openErr
			return
		}

		if slot == -1 {
			p.FDs = append(p.FDs, descr)
			slot = len(p.FDs) - 1
		} else {
			p.FDs[slot] = descr
		}
		fd = slot
	})
	k.observe("open", err)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// Close implements spec §4.5's close: bounds/null-check then fh_dec.
func (k *Kernel) Close(p *proc.Process, fd int) error {
	var err error
	p.MainlockDo(func() {
		if fd < 0 || fd >= len(p.FDs) || p.FDs[fd] == nil {
			err = kerr.EBADF
			return
		}
		k.OFT.Dec(p.FDs[fd])
		p.FDs[fd] = nil
	})
	k.observe("close", err)
	return err
}

// lookupHandle fetches fd's handle under mainlock, checking the access
// mode forbids the requested direction, and releases mainlock before
// returning so the caller can do VFS I/O without holding it (spec §5:
// mainlock is never held across a VOP call).
func (k *Kernel) lookupHandle(p *proc.Process, fd int, forbidden vfs.OpenFlags) (*oft.FileHandle, error) {
	var h *oft.FileHandle
	var err error
	p.MainlockDo(func() {
		if fd < 0 || fd >= len(p.FDs) || p.FDs[fd] == nil {
			err = kerr.EBADF
			return
		}
		handle := p.FDs[fd].Handle
		if handle.Mode == forbidden {
			err = kerr.EBADF
			return
		}
		h = handle
	})
	return h, err
}

// Read implements spec §4.5's read: stage offset, call the vnode, and
// only advance the offset when the transfer reports success.
func (k *Kernel) Read(p *proc.Process, fd int, buf []byte) (int, error) {
	fh, err := k.lookupHandle(p, fd, vfs.OWRONLY)
	if err != nil {
		k.observe("read", err)
		return 0, err
	}

	var n int
	_, err = fh.WithOffset(func(offset int64) (int64, int, error) {
		read, rerr := fh.Vnode.Read(buf, offset)
		if rerr == io.EOF {
			rerr = nil
		}
		if rerr != nil {
			return offset, 0, rerr
		}
		n = read
		return offset + int64(read), read, nil
	})
	k.observe("read", err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Write implements spec §4.5's write, mirroring Read.
func (k *Kernel) Write(p *proc.Process, fd int, buf []byte) (int, error) {
	fh, err := k.lookupHandle(p, fd, vfs.ORDONLY)
	if err != nil {
		k.observe("write", err)
		return 0, err
	}

	var n int
	_, err = fh.WithOffset(func(offset int64) (int64, int, error) {
		written, werr := fh.Vnode.Write(buf, offset)
		if werr != nil {
			return offset, 0, werr
		}
		n = written
		return offset + int64(written), written, nil
	})
	k.observe("write", err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Lseek implements spec §4.5's lseek: ESPIPE on an unseekable vnode,
// EINVAL on a negative result, otherwise the new 64-bit offset.
func (k *Kernel) Lseek(p *proc.Process, fd int, pos int64, whence int) (int64, error) {
	fh, err := k.lookupHandle(p, fd, vfs.OpenFlags(-1))
	if err != nil {
		k.observe("lseek", err)
		return 0, err
	}
	if !fh.Vnode.IsSeekable() {
		k.observe("lseek", kerr.ESPIPE)
		return 0, kerr.ESPIPE
	}

	var result int64
	err = fh.WithLock(func(offset int64) (int64, error) {
		var next int64
		switch whence {
		case SeekSet:
			next = pos
		case SeekCur:
			next = offset + pos
		case SeekEnd:
			size, serr := fh.Vnode.Size()
			if serr != nil {
				return offset, serr
			}
			next = size + pos
		default:
			return offset, kerr.EINVAL
		}
		if next < 0 {
			return offset, kerr.EINVAL
		}
		result = next
		return next, nil
	})
	k.observe("lseek", err)
	if err != nil {
		return 0, err
	}
	return result, nil
}

// Dup2 implements spec §4.5's dup2 and open question (iii): intermediate
// slots created by growing fds up to new are left null; only new itself
// receives the duplicated descriptor.
func (k *Kernel) Dup2(p *proc.Process, old, new int) (int, error) {
	var err error
	p.MainlockDo(func() {
		if old < 0 || old >= len(p.FDs) || p.FDs[old] == nil || new < 0 {
			err = kerr.EBADF
			return
		}
		if old == new {
			return
		}
		if new >= len(p.FDs) {
			grown := make([]*oft.FileDescriptor, new+1)
			copy(grown, p.FDs)
			p.FDs = grown
		}
		if p.FDs[new] != nil {
			k.OFT.Dec(p.FDs[new])
		}
		p.FDs[new] = p.FDs[old]
		k.OFT.Inc(p.FDs[old])
	})
	k.observe("dup2", err)
	if err != nil {
		return 0, err
	}
	return new, nil
}

// Chdir implements spec §4.5's chdir: resolve path under mainlock and
// swap in the new cwd, dropping a reference on the old one.
func (k *Kernel) Chdir(p *proc.Process, path string) error {
	var err error
	p.MainlockDo(func() {
		vn, openErr := k.FS.Open(path, vfs.ORDONLY)
		if openErr != nil {
			err = openErr
			return
		}
		old := p.Cwd()
		p.SetCwd(vn, path)
		if old != nil {
			old.Decref()
		}
	})
	k.observe("chdir", err)
	return err
}

// Getcwd implements spec §4.5's __getcwd, copying the process's
// remembered cwd path into buf.
func (k *Kernel) Getcwd(p *proc.Process, buf []byte) (int, error) {
	var n int
	p.MainlockDo(func() {
		n = copy(buf, p.CwdPath())
	})
	k.observe("getcwd", nil)
	return n, nil
}
