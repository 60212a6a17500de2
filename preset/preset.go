// Package preset contains named volume geometries.
package preset

import "github.com/memfat/memfat/fat"

// Preset is a named volume geometry.
type Preset struct {
	BootRecord fat.BootRecord
	// Slug is a unique, short string used on the command line to refer to
	// this preset.
	Slug string
}

const sectorSize = 512

var (
	// Presets contains a mapping from a human readable description to a
	// preset.
	Presets = map[string]Preset{
		// 8192 sectors with a single 128 KiB FAT.
		"4 MiB, 512 byte clusters": {
			BootRecord: fat.DefaultBootRecord(),
			Slug:       "default",
		},
		"64 KiB, for tests and experiments": {
			BootRecord: fat.BootRecord{
				BytesPerSector:    sectorSize,
				SectorsPerCluster: 1,
				ReservedSectors:   1,
				FATCopies:         2,
				RootEntries:       64,
				TotalSectors:      128,
				SectorsPerFAT:     1,
				OEMName:           "memfat",
				VolumeLabel:       "TINY",
				FSType:            "FAT16",
			},
			Slug: "tiny",
		},
		"32 MiB, 4 KiB clusters, mirrored FAT": {
			BootRecord: fat.BootRecord{
				BytesPerSector:    sectorSize,
				SectorsPerCluster: 8,
				ReservedSectors:   4,
				FATCopies:         2,
				RootEntries:       512,
				TotalSectors:      65536,
				SectorsPerFAT:     32,
				OEMName:           "memfat",
				VolumeLabel:       "LARGE",
				FSType:            "FAT16",
			},
			Slug: "large",
		},
	}
)

// BySlug returns the preset with the given slug.
func BySlug(slug string) (Preset, bool) {
	for _, p := range Presets {
		if p.Slug == slug {
			return p, true
		}
	}

	return Preset{}, false
}

// Slugs returns the slugs of all presets.
func Slugs() []string {
	var slugs []string
	for _, p := range Presets {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}
