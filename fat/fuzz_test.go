package fat_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/memfat/memfat/fat"
)

// FuzzOperations runs a sequence of operations decoded from the input and
// checks that the volume stays consistent.
func FuzzOperations(f *testing.F) {
	f.Add([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	f.Add([]byte{1, 0, 9, 0, 2, 0, 5, 0, 7, 0})
	f.Add([]byte{1, 3, 8, 3, 0, 3, 6, 3, 7, 3, 9, 3})
	f.Fuzz(func(t *testing.T, inp []byte) {
		br := fat.DefaultBootRecord()
		br.TotalSectors = 128
		br.SectorsPerFAT = 1
		br.RootEntries = 32
		v, err := fat.New(br, nil)
		if err != nil {
			t.Fatal(err)
		}
		cwd := v.Root()
		for len(inp) >= 2 {
			op, arg := inp[0]%10, inp[1]
			inp = inp[2:]
			name := fmt.Sprintf("entry %d with a longer name", arg%4)
			if arg%2 == 0 {
				name = fmt.Sprint(arg % 4)
			}
			switch op {
			case 0:
				err = v.Write(cwd, name, make([]byte, int(arg)*3))
			case 1:
				_, err = v.Mkdir(cwd, name)
			case 2:
				err = v.Append(cwd, name, []byte{arg})
			case 3:
				err = v.RemoveRange(cwd, name, int(arg%8), int(arg%8)+int(arg%5))
			case 4:
				err = v.Remove(cwd, name)
			case 5:
				err = v.RemoveDir(cwd, name)
			case 6:
				err = v.RemoveAll(cwd, name)
			case 7:
				err = v.Undelete(cwd, name)
			case 8:
				var next fat.Dir
				if next, err = v.Cd(cwd, name); err == nil {
					cwd = next
				}
			case 9:
				cwd, err = v.Cd(cwd, "..")
				if err != nil {
					cwd = v.Root()
				}
			}
			if errors.Is(err, fat.ErrCorruption) {
				t.Fatalf("operation %d on %q: %v", op, name, err)
			}
		}
		report, err := v.Scandisk(fat.RepairNone)
		if err != nil {
			t.Fatal(err)
		}
		if !report.Clean() {
			t.Fatalf("Scandisk found problems: %v", report.Problems)
		}
	})
}
