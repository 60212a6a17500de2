package fat

import (
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configure a Volume. The zero value is usable.
type Options struct {
	// Logger receives debug messages about allocations, deletions and
	// repairs. Logging is disabled if nil.
	Logger logrus.FieldLogger

	// Now returns the time stamped on created and modified entries.
	// Defaults to time.Now. Times are converted to UTC before they are
	// stored.
	Now func() time.Time

	// ReuseDeleted lets new entries take over the slots of deleted
	// entries, which then can no longer be undeleted. By default, new
	// entries only use slots which were never written.
	ReuseDeleted bool
}

// Volume is a file system stored in a byte buffer. All methods are safe
// for concurrent use.
type Volume struct {
	mu sync.Mutex

	buf    []byte
	br     BootRecord
	layout Layout
	fat    table

	log          logrus.FieldLogger
	now          func() time.Time
	reuseDeleted bool
}

func pathError(op, path string, err error) error {
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func newVolume(buf []byte, br BootRecord, l Layout, opts *Options) *Volume {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.Out = io.Discard
		log = discard
	}
	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}
	// Timestamps are stored without a zone and read back as UTC.
	now := func() time.Time { return clock().UTC() }
	return &Volume{
		buf:          buf,
		br:           br,
		layout:       l,
		fat:          table{buf: buf, l: l, log: log},
		log:          log,
		now:          now,
		reuseDeleted: opts.ReuseDeleted,
	}
}

// Format writes an empty file system with the geometry br into buf and
// returns the mounted volume.
func Format(buf []byte, br BootRecord, opts *Options) (*Volume, error) {
	l, err := Compute(br)
	if err != nil {
		return nil, pathError("format", "", err)
	}
	if len(buf) < l.Size() {
		return nil, pathError("format", "", fmt.Errorf("%w: buffer of %d bytes cannot hold %d bytes", ErrInvalidGeometry, len(buf), l.Size()))
	}
	clear(buf[:l.Size()])
	if err := br.marshal(buf); err != nil {
		return nil, pathError("format", "", err)
	}
	v := newVolume(buf, br, l, opts)
	for c := uint16(0); c < reservedClusters; c++ {
		v.fat.set(c, clusterReserved)
	}
	for i := 1; i < l.rootSlots(); i++ {
		buf[l.Root.Off+i*direntSize] = slotUnused
	}
	now := v.now()
	root := dirent{
		name:  shortName([]byte(br.VolumeLabel)),
		attr:  AttrVolumeID,
		ctime: fatTime(now),
		cdate: fatDate(now),
	}
	root.touch(now)
	root.encode(buf[l.Root.Off:])
	v.log.WithFields(logrus.Fields{
		"bytes":    l.Size(),
		"clusters": l.Clusters,
	}).Debug("formatted volume")
	return v, nil
}

// New allocates a buffer for the geometry br and formats it.
func New(br BootRecord, opts *Options) (*Volume, error) {
	if _, err := Compute(br); err != nil {
		return nil, pathError("format", "", err)
	}
	return Format(make([]byte, br.Size()), br, opts)
}

// Mount interprets buf as a formatted volume. The boot record is trusted
// apart from its geometry, which must describe a volume fitting in buf.
func Mount(buf []byte, opts *Options) (*Volume, error) {
	br, err := unmarshalBootRecord(buf)
	if err != nil {
		return nil, pathError("mount", "", err)
	}
	l, err := Compute(br)
	if err != nil {
		return nil, pathError("mount", "", err)
	}
	if len(buf) < l.Size() {
		return nil, pathError("mount", "", fmt.Errorf("%w: buffer of %d bytes cannot hold %d bytes", ErrInvalidGeometry, len(buf), l.Size()))
	}
	return newVolume(buf, br, l, opts), nil
}

// BootRecord returns the geometry of the volume.
func (v *Volume) BootRecord() BootRecord { return v.br }

// Layout returns the region layout of the volume.
func (v *Volume) Layout() Layout { return v.layout }

// WriteTo writes the whole volume buffer to w.
func (v *Volume) WriteTo(w io.Writer) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, err := w.Write(v.buf[:v.layout.Size()])
	return int64(n), err
}
