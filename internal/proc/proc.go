// Package proc is the narrow slice of the process abstraction spec.md §1
// calls an external collaborator: "the core reads one item from it — the
// current process's working-directory inode and its open-file descriptor
// table — through a narrow interface." Everything else about processes
// (scheduling, address spaces, signals) is out of scope.
package proc

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Kind distinguishes what a File handle is backed by (spec.md §3). Only
// inode-backed files are implemented; pipes are named for shape only, as the
// syscall layer that would drive them is out of scope (spec.md §1).
type Kind int

const (
	KindInode Kind = iota
	KindPipe
)

// File is an open-file handle: an inode reference, a current offset, and
// independent readable/writable flags (spec.md §3).
type File struct {
	Kind     Kind
	Inode    *inode.Inode
	Offset   uint32
	Readable bool
	Writable bool

	mu sync.Mutex // serializes offset updates from concurrent read/write on the same fd
}

// Lock/Unlock let callers serialize a read-then-advance-offset sequence.
func (f *File) Lock()   { f.mu.Lock() }
func (f *File) Unlock() { f.mu.Unlock() }

// Process holds the one process-local state the core touches directly: the
// working-directory inode and the open-file descriptor table.
type Process struct {
	mu    sync.Mutex
	cwd   *inode.Inode
	files [types.NOFile]*File
}

// New returns a Process whose working directory is cwd (the caller's
// reference; the Process takes ownership of it).
func New(cwd *inode.Inode) *Process {
	return &Process{cwd: cwd}
}

// Cwd returns the process's working-directory inode.
func (p *Process) Cwd() *inode.Inode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// SetCwd replaces the working directory (e.g. after a chdir), releasing the
// previous one via the given release func.
func (p *Process) SetCwd(ip *inode.Inode, release func(*inode.Inode) error) error {
	p.mu.Lock()
	prev := p.cwd
	p.cwd = ip
	p.mu.Unlock()
	if prev != nil && release != nil {
		return release(prev)
	}
	return nil
}

// AllocFD installs f into the first free descriptor slot.
func (p *Process) AllocFD(f *File) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for fd := 0; fd < types.NOFile; fd++ {
		if p.files[fd] == nil {
			p.files[fd] = f
			return fd, nil
		}
	}
	return -1, fmt.Errorf("proc: no free file descriptors")
}

// Get returns the File at fd, validating that fd is in range and the slot is
// occupied (spec.md §4.7's fd-range/nonempty precondition for tag ops).
func (p *Process) Get(fd int) (*File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fd < 0 || fd >= types.NOFile {
		return nil, fmt.Errorf("proc: file descriptor %d out of range", fd)
	}
	f := p.files[fd]
	if f == nil {
		return nil, fmt.Errorf("proc: file descriptor %d is not open", fd)
	}
	return f, nil
}

// Close detaches fd from the table and returns the File that was there, so
// the caller can release its inode reference.
func (p *Process) Close(fd int) (*File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fd < 0 || fd >= types.NOFile {
		return nil, fmt.Errorf("proc: file descriptor %d out of range", fd)
	}
	f := p.files[fd]
	if f == nil {
		return nil, fmt.Errorf("proc: file descriptor %d is not open", fd)
	}
	p.files[fd] = nil
	return f, nil
}
