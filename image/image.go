// Package image persists a fat.Volume in a file. Open loads the file into
// memory and Flush writes it back, while Map (on unix) maps the file into
// memory so every change reaches the file directly.
package image

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/memfat/memfat/fat"
)

// Image is a volume backed by a file.
type Image struct {
	Filename string
	Volume   *fat.Volume

	flush func() error
	close func() error
}

// Open loads the volume stored in filename on fsys. If the file does not
// exist or is empty, a new volume with the geometry br is formatted.
// Changes are written back by Flush and Close.
func Open(fsys afero.Fs, filename string, br fat.BootRecord, opts *fat.Options) (*Image, error) {
	b, err := afero.ReadFile(fsys, filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading image %s", filename)
	}
	var v *fat.Volume
	if len(b) == 0 {
		if _, err := fat.Compute(br); err != nil {
			return nil, errors.Wrapf(err, "formatting image %s", filename)
		}
		b = make([]byte, br.Size())
		if v, err = fat.Format(b, br, opts); err != nil {
			return nil, errors.Wrapf(err, "formatting image %s", filename)
		}
	} else if v, err = fat.Mount(b, opts); err != nil {
		return nil, errors.Wrapf(err, "mounting image %s", filename)
	}
	i := &Image{
		Filename: filename,
		Volume:   v,
	}
	i.flush = func() error {
		f, err := fsys.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		if _, err := v.WriteTo(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	i.close = func() error { return nil }
	if err := i.Flush(); err != nil {
		return nil, err
	}
	return i, nil
}

// Create formats a new volume with the geometry br in filename on fsys,
// replacing any existing content.
func Create(fsys afero.Fs, filename string, br fat.BootRecord, opts *fat.Options) (*Image, error) {
	if err := fsys.Remove(filename); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "removing old image %s", filename)
	}
	return Open(fsys, filename, br, opts)
}

// Flush writes all changes to the backing file.
func (i *Image) Flush() error {
	if err := i.flush(); err != nil {
		return errors.Wrapf(err, "writing image %s", i.Filename)
	}
	return nil
}

// Close flushes the image and releases its memory. The Volume must not be
// used afterwards.
func (i *Image) Close() error {
	if err := i.Flush(); err != nil {
		return err
	}
	if err := i.close(); err != nil {
		return errors.Wrapf(err, "closing image %s", i.Filename)
	}
	return nil
}
