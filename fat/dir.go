package fat

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Dir identifies a directory by the buffer address of its entry. The
// root directory is identified by the volume ID entry in the first slot
// of the root region.
type Dir struct {
	addr int
}

// Entry describes a directory entry.
type Entry struct {
	Name     string
	Attr     Attr
	Size     uint32
	Cluster  uint16
	Created  time.Time
	Modified time.Time
}

func (e Entry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

func (e Entry) Deleted() bool { return e.Attr&AttrDeleted != 0 }

// group is one parsed entry: the anchor slot and the long-name records
// in front of it. first and anchor index into listing.slots.
type group struct {
	first  int
	anchor int
	addr   int
	name   string
	ent    dirent
}

func (g group) entry() Entry {
	return Entry{
		Name:     g.name,
		Attr:     g.ent.attr,
		Size:     g.ent.size,
		Cluster:  g.ent.cluster,
		Created:  unmarshalTimeDate(g.ent.ctime, g.ent.cdate),
		Modified: unmarshalTimeDate(g.ent.wtime, g.ent.wdate),
	}
}

func (g group) span() int { return g.anchor - g.first + 1 }

// listing holds the parsed contents of a directory.
type listing struct {
	slots  []int
	groups []group
	// end is the index of the first unused slot, len(slots) if there is
	// none. Every slot from end on is unused.
	end int
}

func (l *listing) find(name string, deleted bool) (group, bool) {
	for _, g := range l.groups {
		if g.name == name && g.ent.deleted() == deleted {
			return g, true
		}
	}
	return group{}, false
}

func (l *listing) live() []group {
	var gs []group
	for _, g := range l.groups {
		if !g.ent.deleted() {
			gs = append(gs, g)
		}
	}
	return gs
}

type slotKind int

const (
	slotFound slotKind = iota
	slotFirstUnused
	slotFirstDeleted
	slotExhausted
)

type slotResult struct {
	kind  slotKind
	group group // for slotFound and slotFirstDeleted
	index int   // for slotFirstUnused
}

// findSlot searches for a live entry called name and otherwise reports
// where a new entry could go.
func (l *listing) findSlot(name string) slotResult {
	if g, ok := l.find(name, false); ok {
		return slotResult{kind: slotFound, group: g}
	}
	if l.end < len(l.slots) {
		return slotResult{kind: slotFirstUnused, index: l.end}
	}
	for _, g := range l.groups {
		if g.ent.deleted() {
			return slotResult{kind: slotFirstDeleted, group: g}
		}
	}
	return slotResult{kind: slotExhausted}
}

func (v *Volume) isRoot(d Dir) bool { return d.addr == v.layout.Root.Off }

func (v *Volume) entryAt(addr int) dirent {
	return decodeDirent(v.buf[addr : addr+direntSize])
}

func (v *Volume) cluster(c uint16) []byte {
	off := v.layout.clusterOff(c)
	return v.buf[off : off+v.layout.ClusterSize]
}

// firstCluster returns the first cluster of ent after checking that it
// lies in the data region and is in the state ent claims.
func (v *Volume) firstCluster(ent dirent) (uint16, error) {
	c := ent.cluster
	if !v.fat.valid(c) {
		return 0, fmt.Errorf("%w: entry starts at cluster %d outside the data region", ErrCorruption, c)
	}
	want := stateLive
	if ent.deleted() {
		want = stateDeleted
	}
	if got := v.fat.state(c); got != want {
		return 0, fmt.Errorf("%w: entry starts at cluster %d which is %v", ErrCorruption, c, got)
	}
	return c, nil
}

// validAddr reports whether addr is the address of a slot in the root
// region or the data region.
func (v *Volume) validAddr(addr int) bool {
	l := v.layout
	switch {
	case addr >= l.Root.Off && addr < l.Root.End():
		return (addr-l.Root.Off)%direntSize == 0
	case addr >= l.Data.Off && addr < l.clusterOff(l.maxCluster()):
		return (addr-l.Data.Off)%direntSize == 0
	}
	return false
}

// checkDir fails with ErrNotFound unless d refers to a live directory.
func (v *Volume) checkDir(d Dir) error {
	if v.isRoot(d) {
		return nil
	}
	if !v.validAddr(d.addr) {
		return ErrNotFound
	}
	b := v.buf[d.addr : d.addr+direntSize]
	if isUnused(b) || isLongName(b) {
		return ErrNotFound
	}
	ent := decodeDirent(b)
	if !ent.isDir() || ent.deleted() {
		return ErrNotFound
	}
	return nil
}

// dirCluster returns the first cluster of d, 0 for the root directory.
func (v *Volume) dirCluster(d Dir) uint16 {
	if v.isRoot(d) {
		return 0
	}
	return v.entryAt(d.addr).cluster
}

// slots returns the addresses of every slot of d which can hold an
// entry, in order. The "." and ".." slots of a subdirectory and the
// volume ID slot of the root are not included.
func (v *Volume) slots(d Dir) ([]int, error) {
	var slots []int
	if v.isRoot(d) {
		for i := 1; i < v.layout.rootSlots(); i++ {
			slots = append(slots, v.layout.Root.Off+i*direntSize)
		}
		return slots, nil
	}
	ent := v.entryAt(d.addr)
	perCluster := v.layout.ClusterSize / direntSize
	ch := v.fat.walk(ent.cluster, ent.deleted())
	for i := 0; ch.Next(); i++ {
		off := v.layout.clusterOff(ch.Cluster())
		from := 0
		if i == 0 {
			from = 2 // . and ..
		}
		for s := from; s < perCluster; s++ {
			slots = append(slots, off+s*direntSize)
		}
	}
	return slots, ch.Err()
}

// parse reads the entries of d up to the first unused slot. Long-name
// records which do not form a complete sequence in front of a matching
// anchor are ignored.
func (v *Volume) parse(d Dir) (*listing, error) {
	slots, err := v.slots(d)
	if err != nil {
		return nil, err
	}
	l := &listing{slots: slots, end: len(slots)}
	var (
		pending      []longNameRecord
		pendingStart int
	)
	for i, addr := range slots {
		b := v.buf[addr : addr+direntSize]
		if isUnused(b) {
			l.end = i
			break
		}
		if isLongName(b) {
			rec := decodeLongName(b)
			switch {
			case rec.last:
				pending = []longNameRecord{rec}
				pendingStart = i
			case len(pending) > 0 &&
				rec.seq == pending[len(pending)-1].seq-1 &&
				rec.sum == pending[0].sum:
				pending = append(pending, rec)
			default:
				pending = nil
			}
			continue
		}

		ent := decodeDirent(b)
		g := group{first: i, anchor: i, addr: addr, ent: ent}
		name := nameFromShort(ent.name)
		if n := len(pending); n > 0 &&
			ent.attr&AttrArchive != 0 &&
			pending[0].seq == n &&
			pending[n-1].seq == 1 &&
			pending[0].sum == checksum(ent.name) {
			name = name[:0]
			for j := n - 1; j >= 0; j-- {
				name = append(name, pending[j].fragment...)
			}
			g.first = pendingStart
		}
		pending = nil
		g.name = decodeName(name)
		l.groups = append(l.groups, g)
	}
	return l, nil
}

// parentOf follows the ".." back-link of d.
func (v *Volume) parentOf(d Dir) (Dir, error) {
	if v.isRoot(d) {
		return d, nil
	}
	c, err := v.firstCluster(v.entryAt(d.addr))
	if err != nil {
		return Dir{}, err
	}
	dotdot := decodeDirent(v.cluster(c)[direntSize:])
	addr := int(dotdot.size)
	if !v.validAddr(addr) {
		return Dir{}, fmt.Errorf("%w: parent link of cluster %d points to %#x", ErrCorruption, c, addr)
	}
	return Dir{addr: addr}, nil
}

// nameAt returns the name of the entry anchored at addr in parent.
func (v *Volume) nameAt(parent Dir, addr int) (string, error) {
	l, err := v.parse(parent)
	if err != nil {
		return "", err
	}
	for _, g := range l.groups {
		if g.addr == addr {
			return g.name, nil
		}
	}
	return "", fmt.Errorf("%w: entry %#x missing from its parent", ErrCorruption, addr)
}

// resolve looks up a single path component in d.
func (v *Volume) resolve(d Dir, component string) (Dir, error) {
	switch component {
	case ".":
		return d, nil
	case "..":
		return v.parentOf(d)
	}
	l, err := v.parse(d)
	if err != nil {
		return Dir{}, err
	}
	g, ok := l.find(component, false)
	if !ok {
		return Dir{}, ErrNotFound
	}
	if !g.ent.isDir() {
		return Dir{}, ErrNotADirectory
	}
	return Dir{addr: g.addr}, nil
}

// initDirCluster prepares cluster c as the first cluster of the
// directory whose entry is at self.
func (v *Volume) initDirCluster(c uint16, self int, parent Dir, now time.Time) {
	v.initEmptyCluster(c)
	b := v.cluster(c)
	dot := dirent{
		name:    shortName([]byte(".")),
		attr:    AttrDirectory,
		cluster: c,
		size:    uint32(self),
	}
	dotdot := dirent{
		name:    shortName([]byte("..")),
		attr:    AttrDirectory,
		cluster: v.dirCluster(parent),
		size:    uint32(parent.addr),
	}
	for i, e := range []*dirent{&dot, &dotdot} {
		e.ctime, e.cdate = fatTime(now), fatDate(now)
		e.touch(now)
		e.encode(b[i*direntSize:])
	}
}

func (v *Volume) initEmptyCluster(c uint16) {
	b := v.cluster(c)
	clear(b)
	for i := 0; i < len(b); i += direntSize {
		b[i] = slotUnused
	}
}

// growDir appends n empty clusters to the chain of d.
func (v *Volume) growDir(d Dir, n int) error {
	cs, err := v.fat.clusters(v.dirCluster(d), false)
	if err != nil {
		return err
	}
	last := cs[len(cs)-1]
	var added []uint16
	for i := 0; i < n; i++ {
		c, err := v.fat.extend(last)
		if err != nil {
			for _, a := range added {
				v.fat.set(a, clusterFree)
			}
			v.fat.set(cs[len(cs)-1], endOfChain)
			return err
		}
		v.initEmptyCluster(c)
		added = append(added, c)
		last = c
	}
	v.log.WithFields(logrus.Fields{
		"dir":      d.addr,
		"clusters": added,
	}).Debug("grew directory")
	return nil
}

// subtree returns the first cluster of every chain owned by g and, if g
// is a directory, by its entries.
func (v *Volume) subtree(g group, depth int) ([]uint16, error) {
	if depth > v.layout.Clusters {
		return nil, fmt.Errorf("%w: directory nesting too deep", ErrCorruption)
	}
	starts := []uint16{g.ent.cluster}
	if !g.ent.isDir() {
		return starts, nil
	}
	l, err := v.parse(Dir{addr: g.addr})
	if err != nil {
		return nil, err
	}
	for _, child := range l.groups {
		s, err := v.subtree(child, depth+1)
		if err != nil {
			return nil, err
		}
		starts = append(starts, s...)
	}
	return starts, nil
}

// reclaim frees every cluster owned by the deleted entry g so its slots
// can be reused.
func (v *Volume) reclaim(g group) error {
	starts, err := v.subtree(g, 0)
	if err != nil {
		return err
	}
	var cs []uint16
	for _, s := range starts {
		st := v.fat.state(s)
		if st == stateFree {
			continue
		}
		chain, err := v.fat.clusters(s, st == stateDeleted)
		if err != nil {
			return err
		}
		cs = append(cs, chain...)
	}
	for _, c := range cs {
		v.fat.set(c, clusterFree)
	}
	v.log.WithFields(logrus.Fields{
		"name":     g.name,
		"clusters": len(cs),
	}).Debug("reclaimed deleted entry")
	return nil
}

// create adds an entry called name to d and allocates its first cluster.
func (v *Volume) create(d Dir, name string, isDir bool) (group, error) {
	var attr Attr
	if isDir {
		attr = AttrDirectory
	}
	return v.insert(d, name, attr, 0, 0)
}

// insert adds an entry called name to d. If cluster is 0, a cluster is
// allocated and initialized for the new entry, otherwise the entry takes
// over the existing chain starting at cluster.
func (v *Volume) insert(d Dir, name string, attr Attr, cluster uint16, size uint32) (group, error) {
	enc, err := encodeName(name)
	if err != nil {
		return group{}, err
	}
	if err := v.checkDir(d); err != nil {
		return group{}, err
	}
	l, err := v.parse(d)
	if err != nil {
		return group{}, err
	}
	res := l.findSlot(name)
	if res.kind == slotFound {
		return group{}, ErrAlreadyExists
	}

	n := fragments(enc)
	need := n + 1
	start := -1
	if v.reuseDeleted {
		for _, g := range l.groups {
			if g.ent.deleted() && g.span() >= need {
				if err := v.reclaim(g); err != nil {
					return group{}, err
				}
				start = g.anchor - need + 1
				break
			}
		}
	}
	grow := 0
	if start == -1 {
		start = l.end
		if missing := start + need - len(l.slots); missing > 0 {
			if v.isRoot(d) {
				return group{}, ErrDirectoryFull
			}
			perCluster := v.layout.ClusterSize / direntSize
			grow = (missing + perCluster - 1) / perCluster
		}
	}

	c := cluster
	if c == 0 {
		if c, err = v.fat.allocate(); err != nil {
			return group{}, err
		}
	}
	slots := l.slots
	if grow > 0 {
		if err := v.growDir(d, grow); err != nil {
			if cluster == 0 {
				v.fat.set(c, clusterFree)
			}
			return group{}, err
		}
		if slots, err = v.slots(d); err != nil {
			return group{}, err
		}
	}

	now := v.now()
	ent := dirent{
		name:    shortName(enc),
		attr:    attr,
		cluster: c,
		size:    size,
		ctime:   fatTime(now),
		cdate:   fatDate(now),
	}
	ent.touch(now)
	if n > 0 {
		ent.attr |= AttrArchive
	}
	sum := checksum(ent.name)
	for k := 0; k < n; k++ {
		encodeLongName(v.buf[slots[start+k]:], enc, n-k, sum)
	}
	addr := slots[start+n]
	ent.encode(v.buf[addr:])

	if cluster == 0 {
		if ent.isDir() {
			v.initDirCluster(c, addr, d, now)
		} else {
			clear(v.cluster(c))
		}
	}
	v.log.WithFields(logrus.Fields{
		"name":    name,
		"attr":    ent.attr,
		"cluster": c,
		"entry":   addr,
	}).Debug("created entry")
	return group{first: start, anchor: start + n, addr: addr, name: name, ent: ent}, nil
}

// cd resolves a slash separated path relative to d, or to the root
// directory if it starts with a slash.
func (v *Volume) cd(d Dir, path string) (Dir, error) {
	if err := v.checkDir(d); err != nil {
		return Dir{}, err
	}
	if strings.HasPrefix(path, "/") {
		d = v.Root()
	}
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		next, err := v.resolve(d, component)
		if err != nil {
			return Dir{}, err
		}
		d = next
	}
	return d, nil
}

func (v *Volume) pwd(d Dir) (string, error) {
	if err := v.checkDir(d); err != nil {
		return "", err
	}
	var names []string
	for depth := 0; !v.isRoot(d); depth++ {
		if depth > v.layout.Clusters {
			return "", fmt.Errorf("%w: parent links form a loop", ErrCorruption)
		}
		parent, err := v.parentOf(d)
		if err != nil {
			return "", err
		}
		name, err := v.nameAt(parent, d.addr)
		if err != nil {
			return "", err
		}
		names = append(names, name)
		d = parent
	}
	var sb strings.Builder
	sb.WriteString("/")
	for i := len(names) - 1; i >= 0; i-- {
		sb.WriteString(names[i])
		sb.WriteString("/")
	}
	return sb.String(), nil
}

// Root returns the root directory.
func (v *Volume) Root() Dir { return Dir{addr: v.layout.Root.Off} }

// Create adds an empty file, or a directory if isDir is set, to d.
func (v *Volume) Create(d Dir, name string, isDir bool) (Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	op := "create"
	if isDir {
		op = "mkdir"
	}
	g, err := v.create(d, name, isDir)
	if err != nil {
		return Entry{}, pathError(op, name, err)
	}
	return g.entry(), nil
}

// Mkdir is short for Create(d, name, true).
func (v *Volume) Mkdir(d Dir, name string) (Entry, error) {
	return v.Create(d, name, true)
}

// List returns the live entries of d, starting with "." and "..".
func (v *Volume) List(d Dir) ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkDir(d); err != nil {
		return nil, pathError("ls", ".", err)
	}
	l, err := v.parse(d)
	if err != nil {
		return nil, pathError("ls", ".", err)
	}
	parent, err := v.parentOf(d)
	if err != nil {
		return nil, pathError("ls", "..", err)
	}
	entries := []Entry{
		{Name: ".", Attr: AttrDirectory, Cluster: v.dirCluster(d)},
		{Name: "..", Attr: AttrDirectory, Cluster: v.dirCluster(parent)},
	}
	for _, g := range l.live() {
		entries = append(entries, g.entry())
	}
	return entries, nil
}

// Lookup returns the live entry called name in d.
func (v *Volume) Lookup(d Dir, name string) (Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, err := v.lookup(d, name)
	if err != nil {
		return Entry{}, pathError("lookup", name, err)
	}
	return g.entry(), nil
}

// lookup returns the live entry called name in d.
func (v *Volume) lookup(d Dir, name string) (group, error) {
	if err := v.checkDir(d); err != nil {
		return group{}, err
	}
	l, err := v.parse(d)
	if err != nil {
		return group{}, err
	}
	g, ok := l.find(name, false)
	if !ok {
		return group{}, ErrNotFound
	}
	return g, nil
}

// Cd resolves path relative to d. Path components are separated by
// slashes, "." and ".." are understood and a leading slash starts at the
// root directory. The parent of the root directory is the root directory.
func (v *Volume) Cd(d Dir, path string) (Dir, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next, err := v.cd(d, path)
	if err != nil {
		return Dir{}, pathError("cd", path, err)
	}
	return next, nil
}

// Pwd returns the absolute path of d, ending in a slash.
func (v *Volume) Pwd(d Dir) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, err := v.pwd(d)
	if err != nil {
		return "", pathError("pwd", ".", err)
	}
	return p, nil
}
