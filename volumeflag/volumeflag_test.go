package volumeflag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"github.com/memfat/memfat/fat"
)

func TestRegisterPflags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterPflags(fs)
	if err := fs.Parse([]string{"-i", "other.img", "--preset", "default", "--mmap"}); err != nil {
		t.Fatal(err)
	}
	if got, want := Image(), "other.img"; got != want {
		t.Errorf("Image() = %q, want %q", got, want)
	}
	if !Mmap() {
		t.Errorf("Mmap() = false, want true")
	}
	br, err := BootRecord()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fat.DefaultBootRecord(), br); diff != "" {
		t.Errorf("BootRecord: diff (-want +got):\n%s", diff)
	}

	SetPreset("nonexistent")
	if _, err := BootRecord(); err == nil {
		t.Errorf("BootRecord() with an unknown preset succeeded")
	}
}
