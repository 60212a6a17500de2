package fat

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// target returns the live entry called name in d. If there is only a
// deleted one, it fails with ErrAlreadyDeleted.
func (v *Volume) target(d Dir, name string) (group, error) {
	if err := v.checkDir(d); err != nil {
		return group{}, err
	}
	l, err := v.parse(d)
	if err != nil {
		return group{}, err
	}
	if g, ok := l.find(name, false); ok {
		return g, nil
	}
	if _, ok := l.find(name, true); ok {
		return group{}, ErrAlreadyDeleted
	}
	return group{}, ErrNotFound
}

// markDeleted flags the entry and its chain as deleted.
func (v *Volume) markDeleted(g group) error {
	if err := v.fat.markDeleted(g.ent.cluster); err != nil {
		return err
	}
	g.ent.attr |= AttrDeleted
	g.ent.encode(v.buf[g.addr:])
	v.log.WithFields(logrus.Fields{
		"name":    g.name,
		"cluster": g.ent.cluster,
	}).Debug("deleted entry")
	return nil
}

// removeAll deletes g and every live entry below it, deepest first.
func (v *Volume) removeAll(g group, depth int) error {
	if depth > v.layout.Clusters {
		return fmt.Errorf("%w: directory nesting too deep", ErrCorruption)
	}
	if g.ent.isDir() {
		l, err := v.parse(Dir{addr: g.addr})
		if err != nil {
			return err
		}
		for _, child := range l.live() {
			if err := v.removeAll(child, depth+1); err != nil {
				return err
			}
		}
	}
	return v.markDeleted(g)
}

// Remove deletes a file. The entry and its content stay in place until
// their slots are reused, so Undelete can restore them.
func (v *Volume) Remove(d Dir, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, err := v.target(d, name)
	if err != nil {
		return pathError("rm", name, err)
	}
	if g.ent.isDir() {
		return pathError("rm", name, ErrIsADirectory)
	}
	if err := v.markDeleted(g); err != nil {
		return pathError("rm", name, err)
	}
	return nil
}

// RemoveDir deletes a directory which has no live entries.
func (v *Volume) RemoveDir(d Dir, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, err := v.target(d, name)
	if err != nil {
		return pathError("rmdir", name, err)
	}
	if !g.ent.isDir() {
		return pathError("rmdir", name, ErrNotADirectory)
	}
	l, err := v.parse(Dir{addr: g.addr})
	if err != nil {
		return pathError("rmdir", name, err)
	}
	if len(l.live()) > 0 {
		return pathError("rmdir", name, ErrDirectoryNotEmpty)
	}
	if err := v.markDeleted(g); err != nil {
		return pathError("rmdir", name, err)
	}
	return nil
}

// RemoveAll deletes a file, or a directory and everything in it.
func (v *Volume) RemoveAll(d Dir, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, err := v.target(d, name)
	if err != nil {
		return pathError("rm -rf", name, err)
	}
	if err := v.removeAll(g, 0); err != nil {
		return pathError("rm -rf", name, err)
	}
	return nil
}

// Undelete restores a deleted entry called name in d. Entries below a
// restored directory stay deleted.
func (v *Volume) Undelete(d Dir, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkDir(d); err != nil {
		return pathError("undelete", name, err)
	}
	l, err := v.parse(d)
	if err != nil {
		return pathError("undelete", name, err)
	}
	_, live := l.find(name, false)
	g, deleted := l.find(name, true)
	switch {
	case live && deleted:
		return pathError("undelete", name, ErrAlreadyExists)
	case live:
		return pathError("undelete", name, ErrNotDeleted)
	case !deleted:
		return pathError("undelete", name, ErrNotFound)
	}
	if err := v.fat.markUndeleted(g.ent.cluster); err != nil {
		return pathError("undelete", name, err)
	}
	g.ent.attr &^= AttrDeleted
	g.ent.encode(v.buf[g.addr:])
	v.log.WithFields(logrus.Fields{
		"name":    name,
		"cluster": g.ent.cluster,
	}).Debug("undeleted entry")
	return nil
}
