package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Values stored in the file allocation table. Any other value below
// clusterLimit links to the next cluster of a chain. Deleted chains keep
// their links with deletedBit set, so endOfChain becomes deletedEnd.
const (
	clusterFree     = uint16(0x0000)
	endOfChain      = uint16(0xFFFF)
	clusterReserved = uint16(0xFF00)
	deletedBit      = uint16(0x8000)
	deletedEnd      = endOfChain ^ deletedBit
)

type clusterState int

const (
	stateFree clusterState = iota
	stateLive
	stateDeleted
	stateReserved
	stateBad
)

func (s clusterState) String() string {
	switch s {
	case stateFree:
		return "free"
	case stateLive:
		return "live"
	case stateDeleted:
		return "deleted"
	case stateReserved:
		return "reserved"
	}
	return "bad"
}

// table reads and writes the file allocation table inside the volume
// buffer. Writes go to every FAT copy, reads use the first one.
type table struct {
	buf []byte
	l   Layout
	log logrus.FieldLogger
}

func (t *table) get(c uint16) uint16 {
	return binary.LittleEndian.Uint16(t.buf[t.l.FAT.Off+2*int(c):])
}

func (t *table) set(c, v uint16) {
	for i := 0; i < t.l.copies; i++ {
		off := t.l.FAT.Off + i*t.l.fatLen + 2*int(c)
		binary.LittleEndian.PutUint16(t.buf[off:], v)
	}
}

func (t *table) valid(c uint16) bool {
	return c >= reservedClusters && c < t.l.maxCluster()
}

// classify reports the state of a table value, the cluster it links to
// (if any) and whether it terminates its chain.
func (t *table) classify(v uint16) (st clusterState, next uint16, last bool) {
	switch {
	case v == clusterFree:
		return stateFree, 0, false
	case v == clusterReserved:
		return stateReserved, 0, false
	case v == endOfChain:
		return stateLive, 0, true
	case v == deletedEnd:
		return stateDeleted, 0, true
	case t.valid(v):
		return stateLive, v, false
	case v&deletedBit != 0 && t.valid(v^deletedBit):
		return stateDeleted, v ^ deletedBit, false
	}
	return stateBad, 0, false
}

func (t *table) state(c uint16) clusterState {
	st, _, _ := t.classify(t.get(c))
	return st
}

// allocate claims the lowest free cluster and marks it as the end of a
// new chain.
func (t *table) allocate() (uint16, error) {
	for c := uint16(reservedClusters); c < t.l.maxCluster(); c++ {
		if t.get(c) == clusterFree {
			t.set(c, endOfChain)
			t.log.WithField("cluster", c).Debug("allocated cluster")
			return c, nil
		}
	}
	return 0, ErrVolumeFull
}

// extend allocates a cluster and links it after last, which must end a
// live chain.
func (t *table) extend(last uint16) (uint16, error) {
	c, err := t.allocate()
	if err != nil {
		return 0, err
	}
	t.set(last, c)
	return c, nil
}

// chain iterates over the clusters of a chain. Use it like a
// bufio.Scanner:
//
//	ch := t.walk(start, false)
//	for ch.Next() {
//		c := ch.Cluster()
//	}
//	if err := ch.Err(); err != nil {
//		…
//	}
type chain struct {
	t     *table
	want  clusterState
	next  uint16
	cur   uint16
	steps int
	done  bool
	err   error
}

// walk returns an iterator over the chain starting at start. Every
// cluster must be in the deleted state if deleted is true, live otherwise.
func (t *table) walk(start uint16, deleted bool) *chain {
	want := stateLive
	if deleted {
		want = stateDeleted
	}
	return &chain{t: t, want: want, next: start}
}

func (ch *chain) fail(format string, args ...interface{}) bool {
	ch.err = fmt.Errorf("%w: "+format, append([]interface{}{ErrCorruption}, args...)...)
	return false
}

func (ch *chain) Next() bool {
	if ch.done || ch.err != nil {
		return false
	}
	c := ch.next
	if !ch.t.valid(c) {
		return ch.fail("chain links to cluster %d outside the data region", c)
	}
	ch.steps++
	if ch.steps > ch.t.l.Clusters {
		return ch.fail("chain loops at cluster %d", c)
	}
	st, next, last := ch.t.classify(ch.t.get(c))
	if st != ch.want {
		return ch.fail("cluster %d is %v, expected %v", c, st, ch.want)
	}
	ch.cur = c
	ch.next = next
	ch.done = last
	return true
}

func (ch *chain) Cluster() uint16 { return ch.cur }

func (ch *chain) Err() error { return ch.err }

// clusters returns the whole chain starting at start.
func (t *table) clusters(start uint16, deleted bool) ([]uint16, error) {
	var cs []uint16
	ch := t.walk(start, deleted)
	for ch.Next() {
		cs = append(cs, ch.Cluster())
	}
	return cs, ch.Err()
}

// toggle flips the deleted bit of every cluster of a chain after checking
// that the whole chain is in the state implied by deleted.
func (t *table) toggle(start uint16, deleted bool) error {
	cs, err := t.clusters(start, deleted)
	if err != nil {
		return err
	}
	for _, c := range cs {
		t.set(c, t.get(c)^deletedBit)
	}
	return nil
}

// markDeleted sets the deleted bit on a live chain. It fails with
// ErrAlreadyDeleted, changing nothing, if the chain is deleted already.
func (t *table) markDeleted(start uint16) error {
	if t.valid(start) && t.state(start) == stateDeleted {
		return ErrAlreadyDeleted
	}
	if err := t.toggle(start, false); err != nil {
		return err
	}
	t.log.WithField("cluster", start).Debug("deleted chain")
	return nil
}

// markUndeleted reverses markDeleted. It fails with ErrNotDeleted,
// changing nothing, if the chain is live.
func (t *table) markUndeleted(start uint16) error {
	if t.valid(start) && t.state(start) == stateLive {
		return ErrNotDeleted
	}
	if err := t.toggle(start, true); err != nil {
		return err
	}
	t.log.WithField("cluster", start).Debug("undeleted chain")
	return nil
}

// release returns every cluster of a chain to the free state.
func (t *table) release(start uint16, deleted bool) error {
	cs, err := t.clusters(start, deleted)
	if err != nil {
		return err
	}
	for _, c := range cs {
		t.set(c, clusterFree)
	}
	t.log.WithFields(logrus.Fields{
		"cluster":  start,
		"clusters": len(cs),
	}).Debug("released chain")
	return nil
}
