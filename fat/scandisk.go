package fat

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Repair selects what Scandisk does about clusters which are allocated
// but not reachable from any entry.
type Repair int

const (
	// RepairNone only reports problems.
	RepairNone Repair = iota
	// RepairTruncate frees unreachable clusters.
	RepairTruncate
	// RepairAdopt links each run of unreachable clusters into a chain
	// owned by a new FILEnnnn.CHK file in the root directory. The file
	// size covers the first cluster only, the remaining clusters are
	// listed by Pages.
	RepairAdopt
)

// ProblemKind classifies an inconsistency found by Scandisk.
type ProblemKind int

const (
	// Orphan clusters are allocated but reachable from no entry.
	Orphan ProblemKind = iota
	// Dangling chains link to a free cluster.
	Dangling
	// CrossLinked clusters are reachable from two entries.
	CrossLinked
	// Cycle chains link back to one of their own clusters.
	Cycle
	// BadLink chains contain a value outside any valid class.
	BadLink
	// StateMismatch entries are live while their chain is deleted, or
	// the other way around.
	StateMismatch
	// FATMismatch means a FAT copy differs from the first one.
	FATMismatch
)

func (k ProblemKind) String() string {
	switch k {
	case Orphan:
		return "orphan"
	case Dangling:
		return "dangling"
	case CrossLinked:
		return "cross-linked"
	case Cycle:
		return "cycle"
	case BadLink:
		return "bad link"
	case StateMismatch:
		return "state mismatch"
	case FATMismatch:
		return "FAT mismatch"
	}
	return fmt.Sprintf("ProblemKind(%d)", int(k))
}

// Problem is one inconsistency found by Scandisk.
type Problem struct {
	Kind ProblemKind
	// Path of the entry whose chain is affected, empty for orphans.
	Path string
	// Other is the path of the entry which claimed a cross-linked
	// cluster first.
	Other    string
	Clusters []uint16
}

func (p Problem) String() string {
	var sb strings.Builder
	sb.WriteString(p.Kind.String())
	if p.Path != "" {
		fmt.Fprintf(&sb, " %s", p.Path)
	}
	if p.Other != "" {
		fmt.Fprintf(&sb, " (shared with %s)", p.Other)
	}
	if len(p.Clusters) > 0 {
		fmt.Fprintf(&sb, " clusters %v", p.Clusters)
	}
	return sb.String()
}

// Report is the result of Scandisk.
type Report struct {
	Problems []Problem
	// Repaired is the number of clusters freed or adopted.
	Repaired int
	// Adopted lists the files created by RepairAdopt.
	Adopted []string
}

// Clean reports whether no problems were found.
func (r *Report) Clean() bool { return len(r.Problems) == 0 }

type checker struct {
	v      *Volume
	owner  []string
	walkID []int
	id     int
	report *Report
}

func (ck *checker) problem(p Problem) {
	ck.report.Problems = append(ck.report.Problems, p)
}

// chain claims every cluster of the chain of g for path and reports
// whether the chain is intact.
func (ck *checker) chain(g group, path string) bool {
	t := &ck.v.fat
	ck.id++
	want := stateLive
	if g.ent.deleted() {
		want = stateDeleted
	}
	c := g.ent.cluster
	for {
		if !t.valid(c) {
			ck.problem(Problem{Kind: BadLink, Path: path, Clusters: []uint16{c}})
			return false
		}
		if ck.walkID[c] == ck.id {
			ck.problem(Problem{Kind: Cycle, Path: path, Clusters: []uint16{c}})
			return false
		}
		if other := ck.owner[c]; other != "" {
			ck.problem(Problem{Kind: CrossLinked, Path: path, Other: other, Clusters: []uint16{c}})
			return false
		}
		ck.owner[c] = path
		ck.walkID[c] = ck.id
		st, next, last := t.classify(t.get(c))
		switch {
		case st == stateFree:
			ck.problem(Problem{Kind: Dangling, Path: path, Clusters: []uint16{c}})
			return false
		case st == stateReserved || st == stateBad:
			ck.problem(Problem{Kind: BadLink, Path: path, Clusters: []uint16{c}})
			return false
		case st != want:
			ck.problem(Problem{Kind: StateMismatch, Path: path, Clusters: []uint16{c}})
			return false
		}
		if last {
			return true
		}
		c = next
	}
}

func (ck *checker) visit(d Dir, prefix string, depth int) {
	if depth > ck.v.layout.Clusters {
		ck.problem(Problem{Kind: Cycle, Path: prefix})
		return
	}
	l, err := ck.v.parse(d)
	if err != nil {
		// The chain of d was checked before descending into it.
		ck.problem(Problem{Kind: BadLink, Path: prefix})
		return
	}
	for _, g := range l.groups {
		path := prefix + g.name
		if ck.chain(g, path) && g.ent.isDir() {
			ck.visit(Dir{addr: g.addr}, path+"/", depth+1)
		}
	}
}

// orphans returns the runs of consecutive allocated clusters which no
// entry reaches.
func (ck *checker) orphans() [][]uint16 {
	t := &ck.v.fat
	var (
		runs [][]uint16
		run  []uint16
	)
	for c := uint16(reservedClusters); c < t.l.maxCluster(); c++ {
		if ck.owner[c] == "" && t.get(c) != clusterFree {
			run = append(run, c)
			continue
		}
		if len(run) > 0 {
			runs = append(runs, run)
			run = nil
		}
	}
	if len(run) > 0 {
		runs = append(runs, run)
	}
	return runs
}

func (v *Volume) fatMismatch() bool {
	first := v.buf[v.layout.FAT.Off : v.layout.FAT.Off+v.layout.fatLen]
	for i := 1; i < v.layout.copies; i++ {
		off := v.layout.FAT.Off + i*v.layout.fatLen
		if !bytes.Equal(first, v.buf[off:off+v.layout.fatLen]) {
			return true
		}
	}
	return false
}

func (v *Volume) syncFATCopies() {
	first := v.buf[v.layout.FAT.Off : v.layout.FAT.Off+v.layout.fatLen]
	for i := 1; i < v.layout.copies; i++ {
		off := v.layout.FAT.Off + i*v.layout.fatLen
		copy(v.buf[off:off+v.layout.fatLen], first)
	}
}

// adopt turns run into a chain owned by a new file in the root directory.
// The file is at most one cluster long; the rest of the chain is kept
// allocated but only reachable through getpages. On failure the table
// values of run are left as they were.
func (v *Volume) adopt(run []uint16) (_ string, err error) {
	old := make([]uint16, len(run))
	for i, c := range run {
		old[i] = v.fat.get(c)
		next := endOfChain
		if i+1 < len(run) {
			next = run[i+1]
		}
		v.fat.set(c, next)
	}
	defer func() {
		if err != nil {
			for i, c := range run {
				v.fat.set(c, old[i])
			}
		}
	}()
	l, err := v.parse(v.Root())
	if err != nil {
		return "", err
	}
	for n := 0; n < 10000; n++ {
		name := fmt.Sprintf("FILE%04d.CHK", n)
		if _, ok := l.find(name, false); ok {
			continue
		}
		size := uint32(v.layout.ClusterSize)
		if _, err := v.insert(v.Root(), name, 0, run[0], size); err != nil {
			return "", err
		}
		return name, nil
	}
	return "", ErrDirectoryFull
}

// Scandisk checks that every allocated cluster belongs to exactly one
// intact chain, and that each chain is in the same state as its entry.
// Only unreachable clusters (and diverging FAT copies) are repaired, the
// other problems are reported for manual inspection.
func (v *Volume) Scandisk(repair Repair) (*Report, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	report := &Report{}
	ck := &checker{
		v:      v,
		owner:  make([]string, v.layout.maxCluster()),
		walkID: make([]int, v.layout.maxCluster()),
		report: report,
	}
	if v.fatMismatch() {
		ck.problem(Problem{Kind: FATMismatch})
		if repair != RepairNone {
			v.syncFATCopies()
		}
	}
	ck.visit(v.Root(), "/", 0)
	runs := ck.orphans()
	for _, run := range runs {
		ck.problem(Problem{Kind: Orphan, Clusters: run})
	}

	switch repair {
	case RepairTruncate:
		for _, run := range runs {
			for _, c := range run {
				v.fat.set(c, clusterFree)
			}
			report.Repaired += len(run)
		}
	case RepairAdopt:
		for _, run := range runs {
			name, err := v.adopt(run)
			if err != nil {
				return report, pathError("scandisk", "/", err)
			}
			report.Adopted = append(report.Adopted, name)
			report.Repaired += len(run)
		}
	}
	if !report.Clean() {
		v.log.WithFields(logrus.Fields{
			"problems": len(report.Problems),
			"repaired": report.Repaired,
		}).Info("scandisk found problems")
	}
	return report, nil
}
