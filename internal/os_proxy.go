package internal

import (
	"io/fs"
	"os"
)

// OsProxy is the part of the os package that file discovery and upload go through,
// so tests can fail a stat or an open without touching the disk.
type OsProxy interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (*os.File, error)
	DirFS(dir string) fs.FS
}

// RealOS delegates to the os package.
type RealOS struct{}

func (RealOS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }     //nolint:revive
func (RealOS) Open(name string) (*os.File, error)    { return os.Open(name) }     //nolint:revive
func (RealOS) DirFS(dir string) fs.FS                { return os.DirFS(dir) }      //nolint:revive
