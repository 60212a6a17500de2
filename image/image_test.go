package image

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/memfat/memfat/fat"
)

func smallBootRecord() fat.BootRecord {
	br := fat.DefaultBootRecord()
	br.TotalSectors = 256
	br.SectorsPerFAT = 1
	br.RootEntries = 64
	return br
}

func TestOpenFormatsMissingImage(t *testing.T) {
	fsys := afero.NewMemMapFs()
	i, err := Open(fsys, "disk.img", smallBootRecord(), nil)
	require.Nil(t, err)
	defer i.Close()

	st, err := fsys.Stat("disk.img")
	require.Nil(t, err)
	require.Equal(t, smallBootRecord().Size(), st.Size())
}

func TestFlushAndReopen(t *testing.T) {
	fsys := afero.NewMemMapFs()
	br := smallBootRecord()
	i, err := Open(fsys, "disk.img", br, nil)
	require.Nil(t, err)

	v := i.Volume
	_, err = v.Mkdir(v.Root(), "home")
	require.Nil(t, err)
	home, err := v.Cd(v.Root(), "home")
	require.Nil(t, err)
	require.Nil(t, v.Write(home, "notes.txt", []byte("ab12")))
	require.Nil(t, i.Close())

	// The geometry passed to Open is ignored for existing images.
	other := fat.DefaultBootRecord()
	i, err = Open(fsys, "disk.img", other, nil)
	require.Nil(t, err)
	defer i.Close()
	v = i.Volume
	require.Equal(t, br, v.BootRecord())
	home, err = v.Cd(v.Root(), "/home")
	require.Nil(t, err)
	b, err := v.Cat(home, "notes.txt")
	require.Nil(t, err)
	require.Equal(t, "ab12", string(b))
}

func TestCreateReplaces(t *testing.T) {
	fsys := afero.NewMemMapFs()
	i, err := Open(fsys, "disk.img", smallBootRecord(), nil)
	require.Nil(t, err)
	require.Nil(t, i.Volume.Write(i.Volume.Root(), "old", []byte("x")))
	require.Nil(t, i.Close())

	i, err = Create(fsys, "disk.img", smallBootRecord(), nil)
	require.Nil(t, err)
	defer i.Close()
	entries, err := i.Volume.List(i.Volume.Root())
	require.Nil(t, err)
	require.Len(t, entries, 2)
}

func TestOpenRejectsGarbage(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.Nil(t, afero.WriteFile(fsys, "garbage.img", []byte("not a volume"), 0644))
	_, err := Open(fsys, "garbage.img", smallBootRecord(), nil)
	require.ErrorIs(t, err, fat.ErrInvalidGeometry)
}

func TestOpenRejectsInvalidGeometry(t *testing.T) {
	br := smallBootRecord()
	br.BytesPerSector = 3
	_, err := Open(afero.NewMemMapFs(), "disk.img", br, nil)
	require.ErrorIs(t, err, fat.ErrInvalidGeometry)
}
