//go:build !unix

package image

import (
	"github.com/spf13/afero"

	"github.com/memfat/memfat/fat"
)

// Map loads filename into memory on platforms without mmap.
func Map(filename string, br fat.BootRecord, opts *fat.Options) (*Image, error) {
	return Open(afero.NewOsFs(), filename, br, opts)
}
