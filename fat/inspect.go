package fat

import "fmt"

// Usage summarizes how the bytes of a volume are used.
type Usage struct {
	// SystemBytes is the size of the boot sector, the FATs and the root
	// directory region.
	SystemBytes int
	// DataBytes is the capacity of the usable data clusters.
	DataBytes int

	UsedBytes    int
	DeletedBytes int
	FreeBytes    int
}

// Usage counts the clusters in each state.
func (v *Volume) Usage() Usage {
	v.mu.Lock()
	defer v.mu.Unlock()
	cs := v.layout.ClusterSize
	u := Usage{
		SystemBytes: v.layout.Data.Off,
		DataBytes:   v.layout.Clusters * cs,
	}
	for c := uint16(reservedClusters); c < v.layout.maxCluster(); c++ {
		switch v.fat.state(c) {
		case stateFree:
			u.FreeBytes += cs
		case stateDeleted:
			u.DeletedBytes += cs
		default:
			u.UsedBytes += cs
		}
	}
	return u
}

// Sectors returns the number of sectors of the volume.
func (v *Volume) Sectors() int {
	return v.layout.Size() / v.layout.SectorSize
}

// Page returns a copy of sector n.
func (v *Volume) Page(n int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n < 0 || n >= v.Sectors() {
		return nil, pathError("dump", fmt.Sprint(n), ErrInvalidRange)
	}
	off := n * v.layout.SectorSize
	return append([]byte(nil), v.buf[off:off+v.layout.SectorSize]...), nil
}

// Pages returns the clusters of the chain of the entry called name in
// d. A live entry is preferred over a deleted one.
func (v *Volume) Pages(d Dir, name string) ([]uint16, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkDir(d); err != nil {
		return nil, pathError("getpages", name, err)
	}
	l, err := v.parse(d)
	if err != nil {
		return nil, pathError("getpages", name, err)
	}
	g, ok := l.find(name, false)
	if !ok {
		if g, ok = l.find(name, true); !ok {
			return nil, pathError("getpages", name, ErrNotFound)
		}
	}
	cs, err := v.fat.clusters(g.ent.cluster, g.ent.deleted())
	if err != nil {
		return nil, pathError("getpages", name, err)
	}
	return cs, nil
}

// ClusterSector returns the first sector of cluster c.
func (v *Volume) ClusterSector(c uint16) int {
	return v.layout.clusterOff(c) / v.layout.SectorSize
}
