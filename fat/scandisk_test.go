package fat

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func kinds(r *Report) []ProblemKind {
	var ks []ProblemKind
	for _, p := range r.Problems {
		ks = append(ks, p.Kind)
	}
	return ks
}

func populated(t *testing.T) *Volume {
	t.Helper()
	v := newTestVolume(t, smallBootRecord(), nil)
	root := v.Root()
	if _, err := v.Mkdir(root, "dir"); err != nil {
		t.Fatal(err)
	}
	dir, err := v.Cd(root, "dir")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []struct {
		d    Dir
		name string
	}{
		{root, "a.txt"},
		{root, "a file with a long name"},
		{dir, "b.txt"},
		{dir, "gone.txt"},
	} {
		if err := v.Write(f.d, f.name, []byte(f.name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.Remove(dir, "gone.txt"); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestScandiskClean(t *testing.T) {
	t.Parallel()

	v := populated(t)
	report, err := v.Scandisk(RepairAdopt)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Clean() || report.Repaired != 0 {
		t.Fatalf("Scandisk on a consistent volume = %+v", report)
	}
}

func TestScandiskOrphans(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		repair     Repair
		wantState  clusterState
		wantAdopts []string
	}{
		{RepairNone, stateLive, nil},
		{RepairTruncate, stateFree, nil},
		{RepairAdopt, stateLive, []string{"FILE0000.CHK", "FILE0001.CHK"}},
	} {
		v := populated(t)
		lost := chainOf(t, v, 2)
		// A second, separate run with a deleted value.
		v.fat.set(lost+3, deletedEnd)
		want := []Problem{
			{Kind: Orphan, Clusters: []uint16{lost, lost + 1}},
			{Kind: Orphan, Clusters: []uint16{lost + 3}},
		}

		report, err := v.Scandisk(tt.repair)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, report.Problems); diff != "" {
			t.Fatalf("repair %d: problems: diff (-want +got):\n%s", tt.repair, diff)
		}
		if diff := cmp.Diff(tt.wantAdopts, report.Adopted); diff != "" {
			t.Fatalf("repair %d: adopted: diff (-want +got):\n%s", tt.repair, diff)
		}
		if got := v.fat.state(lost + 1); got != tt.wantState {
			t.Fatalf("repair %d: cluster %d is %v, want %v", tt.repair, lost+1, got, tt.wantState)
		}
		if tt.repair == RepairNone {
			continue
		}
		if report.Repaired != 3 {
			t.Fatalf("repair %d: repaired %d clusters, want 3", tt.repair, report.Repaired)
		}
		again, err := v.Scandisk(RepairNone)
		if err != nil {
			t.Fatal(err)
		}
		if !again.Clean() {
			t.Fatalf("repair %d: problems left after repair: %v", tt.repair, again.Problems)
		}
		if tt.repair == RepairAdopt {
			pages, err := v.Pages(v.Root(), "FILE0000.CHK")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]uint16{lost, lost + 1}, pages); diff != "" {
				t.Fatalf("adopted chain: diff (-want +got):\n%s", diff)
			}
			e, err := v.Lookup(v.Root(), "FILE0000.CHK")
			if err != nil {
				t.Fatal(err)
			}
			if got, want := int(e.Size), v.layout.ClusterSize; got != want {
				t.Fatalf("FILE0000.CHK size = %d, want %d", got, want)
			}
			if err := v.RemoveRange(v.Root(), "FILE0000.CHK", 0, 1); err != nil {
				t.Fatal(err)
			}
			if err := v.Append(v.Root(), "FILE0000.CHK", []byte("x")); err != nil {
				t.Fatalf("Append to an adopted file: %v", err)
			}
		}
	}
}

func TestScandiskChainProblems(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		corrupt func(t *testing.T, v *Volume)
		want    []ProblemKind
	}{
		{
			name: "dangling",
			corrupt: func(t *testing.T, v *Volume) {
				e, err := v.Lookup(v.Root(), "a.txt")
				if err != nil {
					t.Fatal(err)
				}
				v.fat.set(e.Cluster, clusterFree)
			},
			want: []ProblemKind{Dangling},
		},
		{
			name: "cross-linked",
			corrupt: func(t *testing.T, v *Volume) {
				root := v.Root()
				a, err := v.lookup(root, "a.txt")
				if err != nil {
					t.Fatal(err)
				}
				long, err := v.lookup(root, "a file with a long name")
				if err != nil {
					t.Fatal(err)
				}
				long.ent.cluster = a.ent.cluster
				long.ent.encode(v.buf[long.addr:])
			},
			// The cluster long used to own is now unreachable.
			want: []ProblemKind{CrossLinked, Orphan},
		},
		{
			name: "state mismatch",
			corrupt: func(t *testing.T, v *Volume) {
				e, err := v.Lookup(v.Root(), "a.txt")
				if err != nil {
					t.Fatal(err)
				}
				v.fat.set(e.Cluster, deletedEnd)
			},
			want: []ProblemKind{StateMismatch},
		},
		{
			name: "cycle",
			corrupt: func(t *testing.T, v *Volume) {
				e, err := v.Lookup(v.Root(), "a.txt")
				if err != nil {
					t.Fatal(err)
				}
				v.fat.set(e.Cluster, e.Cluster)
			},
			want: []ProblemKind{Cycle},
		},
		{
			name: "bad link",
			corrupt: func(t *testing.T, v *Volume) {
				e, err := v.Lookup(v.Root(), "a.txt")
				if err != nil {
					t.Fatal(err)
				}
				v.fat.set(e.Cluster, clusterReserved)
			},
			want: []ProblemKind{BadLink},
		},
		{
			name: "FAT copies differ",
			corrupt: func(t *testing.T, v *Volume) {
				v.buf[v.layout.FAT.Off+v.layout.fatLen+2*50] = 0x42
			},
			want: []ProblemKind{FATMismatch},
		},
	} {
		tt := tt // copy
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := populated(t)
			tt.corrupt(t, v)
			report, err := v.Scandisk(RepairNone)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, kinds(report)); diff != "" {
				t.Fatalf("problems %v: diff (-want +got):\n%s", report.Problems, diff)
			}
		})
	}
}

func TestScandiskSyncsFATCopies(t *testing.T) {
	t.Parallel()

	v := populated(t)
	v.buf[v.layout.FAT.Off+v.layout.fatLen+2*50] = 0x42
	if _, err := v.Scandisk(RepairTruncate); err != nil {
		t.Fatal(err)
	}
	if v.fatMismatch() {
		t.Fatal("FAT copies still differ after repair")
	}
}

func TestScandiskAdoptFailureLeavesTable(t *testing.T) {
	t.Parallel()

	v := newTestVolume(t, tinyBootRecord(), nil)
	root := v.Root()
	// Seven one-fragment names fill 14 of the 15 usable root slots.
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		if _, err := v.Create(root, name, false); err != nil {
			t.Fatal(err)
		}
	}
	const lost = 10
	v.fat.set(lost, deletedEnd)

	report, err := v.Scandisk(RepairAdopt)
	if !errors.Is(err, ErrDirectoryFull) {
		t.Fatalf("Scandisk(RepairAdopt) = %v, want ErrDirectoryFull", err)
	}
	if len(report.Adopted) != 0 {
		t.Fatalf("adopted %v in a full root directory", report.Adopted)
	}
	if got := v.fat.get(lost); got != deletedEnd {
		t.Fatalf("cluster %d = %#x after failed adoption, want %#x", lost, got, deletedEnd)
	}
	again, err := v.Scandisk(RepairNone)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]ProblemKind{Orphan}, kinds(again)); diff != "" {
		t.Fatalf("problems: diff (-want +got):\n%s", diff)
	}
}
