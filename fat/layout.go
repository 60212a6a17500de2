package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	bootSectorSize = 512

	// reservedClusters is the number of FAT entries which never describe
	// data: entries 0 and 1 hold the media descriptor and state in real
	// FATs and are marked reserved here.
	reservedClusters = 2

	// clusterLimit keeps every cluster number below the range used by the
	// reserved and end-of-chain markers, even once the deleted bit is set.
	clusterLimit = 0x7F00

	// hardDisk is the media descriptor for a hard disk (as opposed to floppy).
	hardDisk = uint8(0xF8)
)

// BootRecord describes the geometry of a volume. It is stored in the
// first sector of the buffer.
type BootRecord struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCopies         uint8
	RootEntries       uint16
	TotalSectors      uint32
	SectorsPerFAT     uint16

	OEMName     string
	VolumeID    uint32
	VolumeLabel string
	FSType      string
}

// DefaultBootRecord returns the geometry of a 4 MiB volume: 8192 sectors
// of 512 bytes, one sector per cluster, one FAT copy of 128 KiB and 512
// root directory entries.
func DefaultBootRecord() BootRecord {
	return BootRecord{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		FATCopies:         1,
		RootEntries:       512,
		TotalSectors:      8192,
		SectorsPerFAT:     256,
		OEMName:           "memfat",
		VolumeID:          0xf3f37b84,
		VolumeLabel:       "MEMFAT",
		FSType:            "FAT16",
	}
}

// Size returns the number of bytes the volume occupies.
func (br BootRecord) Size() int64 {
	return int64(br.TotalSectors) * int64(br.BytesPerSector)
}

// bpb is the on-disk form of the boot sector.
type bpb struct {
	JumpCode          [3]byte
	OEM               [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCopies         uint8
	RootEntries       uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	DriveNumber       uint8
	CurrentHead       uint8
	BootSignature     uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FSType            [8]byte
	BootCode          [448]byte
	Signature         [2]byte
}

func padded(s string, n int) []byte {
	b := bytes.Repeat([]byte{' '}, n)
	copy(b, s)
	return b
}

func (br BootRecord) marshal(b []byte) error {
	rec := bpb{
		JumpCode:          [3]byte{0xEB, 0x3C, 0x90}, // intel 80x86 jump instruction
		BytesPerSector:    br.BytesPerSector,
		SectorsPerCluster: br.SectorsPerCluster,
		ReservedSectors:   br.ReservedSectors,
		FATCopies:         br.FATCopies,
		RootEntries:       br.RootEntries,
		Media:             hardDisk,
		SectorsPerFAT:     br.SectorsPerFAT,
		SectorsPerTrack:   32, // only for bootcode
		Heads:             4,  // only for bootcode
		DriveNumber:       0x80,
		BootSignature:     0x29,
		VolumeID:          br.VolumeID,
		Signature:         [2]byte{0x55, 0xAA},
	}
	if br.TotalSectors < 0x10000 {
		rec.TotalSectors16 = uint16(br.TotalSectors)
	} else {
		rec.TotalSectors32 = br.TotalSectors
	}
	copy(rec.OEM[:], padded(br.OEMName, len(rec.OEM)))
	copy(rec.VolumeLabel[:], padded(br.VolumeLabel, len(rec.VolumeLabel)))
	copy(rec.FSType[:], padded(br.FSType, len(rec.FSType)))

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
		return err
	}
	copy(b, buf.Bytes())
	return nil
}

func unmarshalBootRecord(b []byte) (BootRecord, error) {
	if len(b) < bootSectorSize {
		return BootRecord{}, fmt.Errorf("%w: buffer smaller than the boot sector", ErrInvalidGeometry)
	}
	var rec bpb
	if err := binary.Read(bytes.NewReader(b[:bootSectorSize]), binary.LittleEndian, &rec); err != nil {
		return BootRecord{}, err
	}
	total := uint32(rec.TotalSectors16)
	if total == 0 {
		total = rec.TotalSectors32
	}
	return BootRecord{
		BytesPerSector:    rec.BytesPerSector,
		SectorsPerCluster: rec.SectorsPerCluster,
		ReservedSectors:   rec.ReservedSectors,
		FATCopies:         rec.FATCopies,
		RootEntries:       rec.RootEntries,
		TotalSectors:      total,
		SectorsPerFAT:     rec.SectorsPerFAT,
		OEMName:           strings.TrimRight(string(rec.OEM[:]), " "),
		VolumeID:          rec.VolumeID,
		VolumeLabel:       strings.TrimRight(string(rec.VolumeLabel[:]), " "),
		FSType:            strings.TrimRight(string(rec.FSType[:]), " "),
	}, nil
}

// Region is a byte range of the volume buffer.
type Region struct {
	Off, Len int
}

// End returns the offset of the first byte after the region.
func (r Region) End() int { return r.Off + r.Len }

// Layout holds the byte offsets derived from a BootRecord.
type Layout struct {
	Boot Region
	FAT  Region // all copies
	Root Region
	Data Region

	SectorSize  int
	ClusterSize int
	// Clusters is the number of usable data clusters, numbered from 2.
	Clusters int

	// fatLen is the length of one FAT copy.
	fatLen int
	copies int
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// Compute derives the region layout of a volume. It fails with
// ErrInvalidGeometry when the regions would not fit or could not hold a
// single data cluster.
func Compute(br BootRecord) (Layout, error) {
	invalid := func(format string, args ...interface{}) (Layout, error) {
		return Layout{}, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidGeometry}, args...)...)
	}
	bps := int(br.BytesPerSector)
	spc := int(br.SectorsPerCluster)
	switch {
	case !isPowerOfTwo(bps) || bps < 512 || bps > 4096:
		return invalid("%d bytes per sector", bps)
	case !isPowerOfTwo(spc) || spc > 128:
		return invalid("%d sectors per cluster", spc)
	case int(br.ReservedSectors)*bps < bootSectorSize:
		return invalid("%d reserved sectors cannot hold the boot sector", br.ReservedSectors)
	case br.FATCopies == 0:
		return invalid("no FAT copies")
	case br.RootEntries < 2:
		return invalid("%d root entries", br.RootEntries)
	case br.SectorsPerFAT == 0:
		return invalid("empty FAT")
	}

	var l Layout
	l.SectorSize = bps
	l.ClusterSize = bps * spc
	l.copies = int(br.FATCopies)
	l.fatLen = int(br.SectorsPerFAT) * bps
	l.Boot = Region{Off: 0, Len: int(br.ReservedSectors) * bps}
	l.FAT = Region{Off: l.Boot.End(), Len: l.fatLen * l.copies}
	rootSectors := (int(br.RootEntries)*direntSize + bps - 1) / bps
	l.Root = Region{Off: l.FAT.End(), Len: int(br.RootEntries) * direntSize}
	dataOff := l.Root.Off + rootSectors*bps
	total := int(br.Size())
	if dataOff >= total {
		return invalid("metadata (%d bytes) fills the volume (%d bytes)", dataOff, total)
	}
	l.Data = Region{Off: dataOff, Len: total - dataOff}

	l.Clusters = l.Data.Len / l.ClusterSize
	if n := l.fatLen/2 - reservedClusters; n < l.Clusters {
		l.Clusters = n
	}
	if n := clusterLimit - reservedClusters; n < l.Clusters {
		l.Clusters = n
	}
	if l.Clusters < 1 {
		return invalid("no room for a data cluster")
	}
	return l, nil
}

// Size returns the number of bytes covered by the layout.
func (l Layout) Size() int { return l.Data.End() }

// maxCluster returns the first cluster number past the usable ones.
func (l Layout) maxCluster() uint16 {
	return uint16(reservedClusters + l.Clusters)
}

func (l Layout) clusterOff(c uint16) int {
	return l.Data.Off + (int(c)-reservedClusters)*l.ClusterSize
}

func (l Layout) rootSlots() int { return l.Root.Len / direntSize }
