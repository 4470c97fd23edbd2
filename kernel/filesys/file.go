package filesys

import (
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/inode"
)

// File is one opener's view of an inode: a position cursor plus the
// per-opener deny-write bookkeeping. A File is not safe for concurrent
// use; the inode beneath it is.
type File struct {
	inode  *inode.Inode
	pos    int64
	denied bool
}

func newFile(i *inode.Inode) *File {
	return &File{inode: i}
}

// Inode exposes the underlying inode.
func (f *File) Inode() *inode.Inode {
	return f.inode
}

// Reopen opens a second independent cursor onto the same inode.
func (f *File) Reopen() *File {
	return newFile(f.inode.Reopen())
}

// Read reads from the cursor and advances it.
func (f *File) Read(p []byte) int {
	n := f.inode.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n
}

// ReadAt reads at an absolute position without moving the cursor.
func (f *File) ReadAt(p []byte, off int64) int {
	return f.inode.ReadAt(p, off)
}

// Write writes at the cursor and advances it.
func (f *File) Write(p []byte) int {
	n := f.inode.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n
}

// WriteAt writes at an absolute position without moving the cursor.
func (f *File) WriteAt(p []byte, off int64) int {
	return f.inode.WriteAt(p, off)
}

// Length returns the file size in bytes.
func (f *File) Length() int64 {
	return f.inode.Length()
}

// Seek moves the cursor to an absolute position.
func (f *File) Seek(pos int64) {
	if pos < 0 {
		pos = 0
	}
	f.pos = pos
}

// Tell reports the cursor position.
func (f *File) Tell() int64 {
	return f.pos
}

// DenyWrite blocks writes to the underlying inode for as long as this
// opener keeps it denied. Idempotent per opener.
func (f *File) DenyWrite() {
	if !f.denied {
		f.denied = true
		f.inode.DenyWrite()
	}
}

// AllowWrite lifts this opener's deny, if any.
func (f *File) AllowWrite() {
	if f.denied {
		f.denied = false
		f.inode.AllowWrite()
	}
}

// Close releases this opener's reference, lifting its deny first.
func (f *File) Close() {
	if f == nil || f.inode == nil {
		return
	}
	f.AllowWrite()
	f.inode.Close()
	f.inode = nil
}
