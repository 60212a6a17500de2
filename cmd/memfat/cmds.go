package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/memfat/memfat/fat"
	"github.com/memfat/memfat/humanize"
	"github.com/memfat/memfat/image"
	memfatshell "github.com/memfat/memfat/shell"
	"github.com/memfat/memfat/volumeflag"
)

// parseFlags parses the flags of a subcommand. An optional positional
// argument names the image, overriding --image.
func parseFlags(name string, fs *pflag.FlagSet, args []string) {
	volumeflag.RegisterPflags(fs)
	fs.Usage = func() {
		fmt.Printf("USAGE: memfat %s [options] [IMAGE]\n\n", name)
		fmt.Printf("Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		log.Fatal("Unable to parse args")
	}
	switch fs.NArg() {
	case 0:
	case 1:
		volumeflag.SetImage(fs.Arg(0))
	default:
		fs.Usage()
		os.Exit(1)
	}
}

func options() *fat.Options {
	return &fat.Options{
		Logger:       log.StandardLogger(),
		ReuseDeleted: cfg.ReuseDeleted,
	}
}

// openImage opens the selected image, formatting it first if create is
// set or the file is missing.
func openImage(create bool) (*image.Image, error) {
	br, err := volumeflag.BootRecord()
	if err != nil {
		return nil, err
	}
	filename := volumeflag.Image()
	if volumeflag.Mmap() {
		if create {
			if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
				return nil, err
			}
		}
		return image.Map(filename, br, options())
	}
	if create {
		return image.Create(afero.NewOsFs(), filename, br, options())
	}
	return image.Open(afero.NewOsFs(), filename, br, options())
}

func shell(args []string) {
	const name = "shell"
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.BoolVar(&cfg.ReuseDeleted,
		"reuse-deleted",
		cfg.ReuseDeleted,
		"let new entries take over the slots and clusters of deleted ones")
	parseFlags(name, fs, args)

	img, err := openImage(false)
	if err != nil {
		log.Fatal(err)
	}
	log.Debugf("opened %s", img.Filename)

	sh := memfatshell.New(img.Volume, afero.NewOsFs(), os.Stdout)
	sh.Log = log.StandardLogger()
	if terminal.IsTerminal(int(os.Stdin.Fd())) {
		sh.Prompt = "memfat> "
	}
	runErr := sh.Run(os.Stdin)
	if err := img.Close(); err != nil {
		log.Fatal(err)
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
}

func format(args []string) {
	const name = "format"
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	parseFlags(name, fs, args)

	img, err := openImage(true)
	if err != nil {
		log.Fatal(err)
	}
	l := img.Volume.Layout()
	size := uint64(l.Size())
	if err := img.Close(); err != nil {
		log.Fatal(err)
	}
	log.Infof("formatted %s: %s, %d clusters of %d bytes", img.Filename, humanize.Bytes(size), l.Clusters, l.ClusterSize)
}

func scandisk(args []string) {
	const name = "scandisk"
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	repairFlag := fs.String("repair",
		"none",
		"what to do about orphaned clusters: none, truncate or adopt")
	parseFlags(name, fs, args)

	var repair fat.Repair
	switch *repairFlag {
	case "none":
		repair = fat.RepairNone
	case "truncate":
		repair = fat.RepairTruncate
	case "adopt":
		repair = fat.RepairAdopt
	default:
		log.Fatalf("unknown --repair=%q", *repairFlag)
	}

	if _, err := os.Stat(volumeflag.Image()); err != nil {
		log.Fatal(err)
	}
	img, err := openImage(false)
	if err != nil {
		log.Fatal(err)
	}
	report, err := img.Volume.Scandisk(repair)
	if err != nil {
		log.Fatal(err)
	}
	if err := img.Close(); err != nil {
		log.Fatal(err)
	}
	for _, p := range report.Problems {
		log.Info(p)
	}
	for _, name := range report.Adopted {
		log.Infof("adopted %s", name)
	}
	if report.Clean() {
		log.Infof("%s: no problems found", img.Filename)
		return
	}
	log.Infof("%s: %d problems, %d clusters repaired", img.Filename, len(report.Problems), report.Repaired)
	if repair == fat.RepairNone {
		os.Exit(1)
	}
}
