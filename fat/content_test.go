package fat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteRead(t *testing.T) {
	t.Parallel()

	v := newTestVolume(t, DefaultBootRecord(), nil)
	root := v.Root()
	if err := v.Write(root, "notes.txt", []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		start, end int
		want       string
	}{
		{0, 11, "hello world"},
		{0, 5, "hello"},
		{6, 100, "world"},
		{11, 20, ""},
		{50, 60, ""},
		{3, 3, ""},
	} {
		got, err := v.ReadRange(root, "notes.txt", tt.start, tt.end)
		if err != nil {
			t.Fatalf("ReadRange(%d, %d): %v", tt.start, tt.end, err)
		}
		if string(got) != tt.want {
			t.Errorf("ReadRange(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
	for _, r := range [][2]int{{-1, 3}, {5, 4}} {
		if _, err := v.ReadRange(root, "notes.txt", r[0], r[1]); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ReadRange(%d, %d) = %v, want ErrInvalidRange", r[0], r[1], err)
		}
	}

	// A shorter write leaves no trace of the old content.
	if err := v.Write(root, "notes.txt", []byte("bye")); err != nil {
		t.Fatal(err)
	}
	got, err := v.Cat(root, "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bye" {
		t.Fatalf("Cat = %q, want %q", got, "bye")
	}
	e, err := v.Lookup(root, "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if tail := v.cluster(e.Cluster)[3:]; !bytes.Equal(tail, make([]byte, len(tail))) {
		t.Fatal("stale bytes left behind the end of the file")
	}
}

func TestAppend(t *testing.T) {
	t.Parallel()

	v := newTestVolume(t, DefaultBootRecord(), nil)
	root := v.Root()
	if _, err := v.Create(root, "log", false); err != nil {
		t.Fatal(err)
	}
	for _, chunk := range []string{"first,", "second"} {
		if err := v.Append(root, "log", []byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := v.Cat(root, "log")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first,second" {
		t.Fatalf("Cat = %q, want %q", got, "first,second")
	}
	if err := v.Append(root, "missing", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Append(missing) = %v, want ErrNotFound", err)
	}
	if err := v.Remove(root, "log"); err != nil {
		t.Fatal(err)
	}
	if err := v.Append(root, "log", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Append(deleted) = %v, want ErrNotFound", err)
	}
}

func TestFileTooLarge(t *testing.T) {
	t.Parallel()

	v := newTestVolume(t, DefaultBootRecord(), nil)
	root := v.Root()
	full := bytes.Repeat([]byte{'x'}, v.layout.ClusterSize)
	if err := v.Write(root, "full", full); err != nil {
		t.Fatal(err)
	}
	if err := v.Append(root, "full", []byte("y")); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Append past the cluster = %v, want ErrFileTooLarge", err)
	}
	if err := v.Write(root, "big", append(full, 'y')); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Write past the cluster = %v, want ErrFileTooLarge", err)
	}
	if _, err := v.Lookup(root, "big"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed Write created the file: %v", err)
	}
	got, err := v.Cat(root, "full")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, full) {
		t.Fatal("failed Append modified the file")
	}
}

func TestRemoveRange(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		start, end int
		want       string
	}{
		{0, 3, "3456789"},
		{3, 7, "012789"},
		{7, 10, "0123456"},
		{5, 100, "01234"},
		{20, 30, "0123456789"},
		{4, 4, "0123456789"},
	} {
		v := newTestVolume(t, DefaultBootRecord(), nil)
		root := v.Root()
		if err := v.Write(root, "digits", []byte("0123456789")); err != nil {
			t.Fatal(err)
		}
		if err := v.RemoveRange(root, "digits", tt.start, tt.end); err != nil {
			t.Fatalf("RemoveRange(%d, %d): %v", tt.start, tt.end, err)
		}
		got, err := v.Cat(root, "digits")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("RemoveRange(%d, %d) left %q, want %q", tt.start, tt.end, got, tt.want)
		}
		e, err := v.Lookup(root, "digits")
		if err != nil {
			t.Fatal(err)
		}
		if tail := v.cluster(e.Cluster)[len(tt.want):]; !bytes.Equal(tail, make([]byte, len(tail))) {
			t.Errorf("RemoveRange(%d, %d) left stale bytes", tt.start, tt.end)
		}
	}
}

func TestContentOnDirectory(t *testing.T) {
	t.Parallel()

	v := newTestVolume(t, DefaultBootRecord(), nil)
	root := v.Root()
	if _, err := v.Mkdir(root, "dir"); err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		op string
		fn func() error
	}{
		{"write", func() error { return v.Write(root, "dir", []byte("x")) }},
		{"append", func() error { return v.Append(root, "dir", []byte("x")) }},
		{"remove", func() error { return v.RemoveRange(root, "dir", 0, 1) }},
		{"read", func() error { _, err := v.ReadRange(root, "dir", 0, 1); return err }},
		{"cat", func() error { _, err := v.Cat(root, "dir"); return err }},
	} {
		if err := tt.fn(); !errors.Is(err, ErrIsADirectory) {
			t.Errorf("%s on a directory = %v, want ErrIsADirectory", tt.op, err)
		}
	}
}

func TestWriteUpdatesSize(t *testing.T) {
	t.Parallel()

	v := newTestVolume(t, DefaultBootRecord(), nil)
	root := v.Root()
	data := []byte("ab12")
	if err := v.Write(root, "notes.txt", data); err != nil {
		t.Fatal(err)
	}
	entries, err := v.List(root)
	if err != nil {
		t.Fatal(err)
	}
	got := entries[2]
	want := Entry{
		Name:     "notes.txt",
		Size:     4,
		Cluster:  2,
		Created:  arbitrary,
		Modified: arbitrary,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("List: diff (-want +got):\n%s", diff)
	}
}
