//go:build unix

package image

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/memfat/memfat/fat"
)

// Map maps filename into memory and mounts it, formatting a new volume
// with the geometry br if the file does not exist or is empty. Every
// change to the volume is a change to the file; Flush only asks the
// kernel to write dirty pages.
func Map(filename string, br fat.BootRecord, opts *fat.Options) (*Image, error) {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening image %s", filename)
	}
	defer f.Close() // the mapping stays valid after closing

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "opening image %s", filename)
	}
	size := st.Size()
	format := size == 0
	if format {
		size = br.Size()
		if err := f.Truncate(size); err != nil {
			return nil, errors.Wrapf(err, "growing image %s", filename)
		}
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping image %s", filename)
	}

	var v *fat.Volume
	if format {
		v, err = fat.Format(buf, br, opts)
	} else {
		v, err = fat.Mount(buf, opts)
	}
	if err != nil {
		unix.Munmap(buf)
		return nil, errors.Wrapf(err, "mounting image %s", filename)
	}
	return &Image{
		Filename: filename,
		Volume:   v,
		flush:    func() error { return unix.Msync(buf, unix.MS_SYNC) },
		close:    func() error { return unix.Munmap(buf) },
	}, nil
}
