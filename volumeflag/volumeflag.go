// Package volumeflag registers the flags which select the image file and
// the geometry of new volumes. All memfat commands share them.
package volumeflag

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/memfat/memfat/fat"
	"github.com/memfat/memfat/preset"
)

var (
	image = func() string {
		def := os.Getenv("MEMFAT_IMAGE")
		if def == "" {
			def = imageFromPWD()
		}
		if def == "" {
			def = "memfat.img"
		}
		return def
	}()

	presetSlug = func() string {
		def := os.Getenv("MEMFAT_PRESET")
		if def == "" {
			def = "default"
		}
		return def
	}()

	mmap bool
)

// imageFromPWD returns the only *.img file in the working directory, if
// there is exactly one.
func imageFromPWD() string {
	matches, err := filepath.Glob("*.img")
	if err != nil || len(matches) != 1 {
		return ""
	}
	return matches[0]
}

func RegisterPflags(fs *pflag.FlagSet) {
	fs.StringVarP(&image,
		"image",
		"i",
		image,
		`image file holding the volume (created if missing)`)

	fs.StringVar(&presetSlug,
		"preset",
		presetSlug,
		fmt.Sprintf("geometry of newly created volumes, one of %v", preset.Slugs()))

	fs.BoolVar(&mmap,
		"mmap",
		mmap,
		`map the image into memory instead of loading it, so changes reach the file immediately`)
}

func SetImage(i string) {
	image = i
}

func SetPreset(slug string) {
	presetSlug = slug
}

func SetMmap(m bool) {
	mmap = m
}

func Image() string {
	return image
}

func Mmap() bool {
	return mmap
}

// BootRecord returns the geometry selected by the --preset flag.
func BootRecord() (fat.BootRecord, error) {
	p, ok := preset.BySlug(presetSlug)
	if !ok {
		return fat.BootRecord{}, fmt.Errorf("unknown preset %q, want one of %v", presetSlug, preset.Slugs())
	}
	return p.BootRecord, nil
}
