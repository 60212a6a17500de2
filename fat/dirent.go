package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	direntSize = 32

	// shortNameLen is the size of the name field of an entry.
	shortNameLen = 11
	// fragmentLen is the number of name bytes held by one long-name record.
	fragmentLen = 10
	// MaxNameLen is the longest name, in code page 437 bytes, an entry
	// can carry.
	MaxNameLen = 255

	// slotUnused marks a slot which has never been written.
	slotUnused = 0xE5
	// escapedE5 replaces a leading 0xE5 name byte so it does not read as
	// slotUnused.
	escapedE5 = 0x05

	// lastFragment is set in the order byte of the long-name record which
	// holds the end of the name.
	lastFragment = 0x40
)

// Attr is the attribute byte of a directory entry.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	// AttrArchive marks an entry preceded by long-name records.
	AttrArchive Attr = 0x20
	AttrDeleted Attr = 0x40

	attrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// dirent is a decoded 32 byte directory entry.
type dirent struct {
	name    [shortNameLen]byte
	attr    Attr
	ctime   uint16
	cdate   uint16
	adate   uint16
	wtime   uint16
	wdate   uint16
	cluster uint16
	size    uint32
}

func decodeDirent(b []byte) dirent {
	var d dirent
	copy(d.name[:], b[0:11])
	d.attr = Attr(b[11])
	d.ctime = binary.LittleEndian.Uint16(b[14:])
	d.cdate = binary.LittleEndian.Uint16(b[16:])
	d.adate = binary.LittleEndian.Uint16(b[18:])
	d.wtime = binary.LittleEndian.Uint16(b[22:])
	d.wdate = binary.LittleEndian.Uint16(b[24:])
	d.cluster = binary.LittleEndian.Uint16(b[26:])
	d.size = binary.LittleEndian.Uint32(b[28:])
	return d
}

func (d *dirent) encode(b []byte) {
	b = b[:direntSize]
	clear(b)
	copy(b[0:11], d.name[:])
	b[11] = byte(d.attr)
	binary.LittleEndian.PutUint16(b[14:], d.ctime)
	binary.LittleEndian.PutUint16(b[16:], d.cdate)
	binary.LittleEndian.PutUint16(b[18:], d.adate)
	binary.LittleEndian.PutUint16(b[22:], d.wtime)
	binary.LittleEndian.PutUint16(b[24:], d.wdate)
	binary.LittleEndian.PutUint16(b[26:], d.cluster)
	binary.LittleEndian.PutUint32(b[28:], d.size)
}

func (d *dirent) deleted() bool { return d.attr&AttrDeleted != 0 }

func (d *dirent) isDir() bool { return d.attr&AttrDirectory != 0 }

func (d *dirent) touch(t time.Time) {
	d.wtime, d.wdate = fatTime(t), fatDate(t)
	d.adate = d.wdate
}

func isUnused(b []byte) bool { return b[0] == slotUnused || b[0] == 0 }

func isLongName(b []byte) bool { return Attr(b[11]) == attrLongName }

func fatTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
}

func fatDate(t time.Time) uint16 {
	return uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
}

func unmarshalTimeDate(t, d uint16) time.Time {
	return time.Date(
		int(d>>9)+1980,
		time.Month(d>>5&0xF),
		int(d&0x1F),
		int(t>>11),
		int(t>>5&0x3F),
		int(t&0x1F)*2,
		0,
		time.UTC)
}

// encodeName validates name and returns its code page 437 form.
func encodeName(name string) ([]byte, error) {
	switch {
	case name == "":
		return nil, ErrNameEmpty
	case name == "." || name == "..":
		return nil, ErrInvalidName
	case !utf8.ValidString(name):
		return nil, ErrInvalidName
	case strings.HasSuffix(name, " "):
		return nil, ErrInvalidName
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7F || r == '/' {
			return nil, ErrInvalidName
		}
	}
	enc, err := charmap.CodePage437.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, ErrInvalidName
	}
	if len(enc) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return enc, nil
}

func decodeName(b []byte) string {
	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// shortName returns the name field for an encoded name: the name itself
// when it fits, its first 11 bytes otherwise.
func shortName(enc []byte) [shortNameLen]byte {
	var n [shortNameLen]byte
	copy(n[:], bytes.Repeat([]byte{' '}, shortNameLen))
	copy(n[:], enc)
	if n[0] == slotUnused {
		n[0] = escapedE5
	}
	return n
}

// nameFromShort reverses shortName for names that fit.
func nameFromShort(n [shortNameLen]byte) []byte {
	b := append([]byte(nil), bytes.TrimRight(n[:], " ")...)
	if len(b) > 0 && b[0] == escapedE5 {
		b[0] = slotUnused
	}
	return b
}

func checksum(n [shortNameLen]byte) uint8 {
	var sum uint8
	for _, c := range n {
		sum = (sum&1)<<7 + sum>>1 + c
	}
	return sum
}

// fragments returns the number of long-name records needed for enc.
func fragments(enc []byte) int {
	if len(enc) <= shortNameLen {
		return 0
	}
	return (len(enc) + fragmentLen - 1) / fragmentLen
}

// encodeLongName writes record seq (1-based) of the long name enc into b.
func encodeLongName(b []byte, enc []byte, seq int, sum uint8) {
	b = b[:direntSize]
	clear(b)
	b[0] = byte(seq)
	if seq == fragments(enc) {
		b[0] |= lastFragment
	}
	start := (seq - 1) * fragmentLen
	end := min(start+fragmentLen, len(enc))
	copy(b[1:1+fragmentLen], enc[start:end])
	b[11] = byte(attrLongName)
	b[13] = sum
}

// longNameRecord is a decoded long-name record.
type longNameRecord struct {
	seq      int
	last     bool
	sum      uint8
	fragment []byte
}

func decodeLongName(b []byte) longNameRecord {
	frag := b[1 : 1+fragmentLen]
	if i := bytes.IndexByte(frag, 0); i > -1 {
		frag = frag[:i]
	}
	return longNameRecord{
		seq:      int(b[0] &^ lastFragment),
		last:     b[0]&lastFragment != 0,
		sum:      b[13],
		fragment: append([]byte(nil), frag...),
	}
}
