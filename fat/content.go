package fat

// file returns the live, non-directory entry called name in d.
func (v *Volume) file(d Dir, name string) (group, error) {
	g, err := v.lookup(d, name)
	if err != nil {
		return group{}, err
	}
	if g.ent.isDir() {
		return group{}, ErrIsADirectory
	}
	if _, err := v.firstCluster(g.ent); err != nil {
		return group{}, err
	}
	return g, nil
}

// content returns the bytes of a file which are in use.
func (v *Volume) content(g group) []byte {
	size := min(int(g.ent.size), v.layout.ClusterSize)
	return v.cluster(g.ent.cluster)[:size]
}

func (v *Volume) setSize(g *group, size int) {
	g.ent.size = uint32(size)
	g.ent.touch(v.now())
	g.ent.encode(v.buf[g.addr:])
}

// ReadRange returns a copy of the bytes [start, end) of a file. The range
// is cut short at the end of the file.
func (v *Volume) ReadRange(d Dir, name string, start, end int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if start < 0 || end < start {
		return nil, pathError("read", name, ErrInvalidRange)
	}
	g, err := v.file(d, name)
	if err != nil {
		return nil, pathError("read", name, err)
	}
	b := v.content(g)
	start = min(start, len(b))
	end = min(end, len(b))
	return append([]byte(nil), b[start:end]...), nil
}

// Cat returns a copy of the content of a file.
func (v *Volume) Cat(d Dir, name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, err := v.file(d, name)
	if err != nil {
		return nil, pathError("cat", name, err)
	}
	return append([]byte(nil), v.content(g)...), nil
}

// Write replaces the content of a file with data, creating the file if
// there is no live entry called name.
func (v *Volume) Write(d Dir, name string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(data) > v.layout.ClusterSize {
		return pathError("write", name, ErrFileTooLarge)
	}
	g, err := v.file(d, name)
	if err == ErrNotFound {
		g, err = v.create(d, name, false)
	}
	if err != nil {
		return pathError("write", name, err)
	}
	b := v.cluster(g.ent.cluster)
	copy(b, data)
	clear(b[len(data):])
	v.setSize(&g, len(data))
	return nil
}

// Append adds data to the end of a file.
func (v *Volume) Append(d Dir, name string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, err := v.file(d, name)
	if err != nil {
		return pathError("append", name, err)
	}
	size := int(g.ent.size)
	if size+len(data) > v.layout.ClusterSize {
		return pathError("append", name, ErrFileTooLarge)
	}
	copy(v.cluster(g.ent.cluster)[size:], data)
	v.setSize(&g, size+len(data))
	return nil
}

// RemoveRange cuts the bytes [start, end) out of a file, moving the rest
// of the content forward. The range is cut short at the end of the file.
func (v *Volume) RemoveRange(d Dir, name string, start, end int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if start < 0 || end < start {
		return pathError("remove", name, ErrInvalidRange)
	}
	g, err := v.file(d, name)
	if err != nil {
		return pathError("remove", name, err)
	}
	b := v.content(g)
	size := len(b)
	start = min(start, size)
	end = min(end, size)
	n := copy(b[start:], b[end:])
	clear(b[start+n:])
	v.setSize(&g, size-(end-start))
	return nil
}
