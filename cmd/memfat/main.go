// memfat keeps a FAT16-style file system in an image file and lets you
// work with it through an interactive shell.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/memfat/memfat/config"
	"github.com/memfat/memfat/volumeflag"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter overrides the default format for Info() log events to
// provide an easier to read output
type infoFormatter struct {
}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

var cfg config.Config

// applyConfig makes the configuration file values the flag defaults.
// Environment variables take precedence over the file.
func applyConfig(c config.Config) {
	if c.Image != "" && os.Getenv("MEMFAT_IMAGE") == "" {
		volumeflag.SetImage(c.Image)
	}
	if c.Preset != "" && os.Getenv("MEMFAT_PRESET") == "" {
		volumeflag.SetPreset(c.Preset)
	}
	if c.Mmap {
		volumeflag.SetMmap(true)
	}
}

func usage() {
	prog := filepath.Base(os.Args[0])
	fmt.Printf("USAGE: %s [options] [COMMAND]\n\n", prog)
	fmt.Printf("Commands:\n")
	fmt.Printf("  shell       Run commands against the image (default)\n")
	fmt.Printf("  format      Create a new, empty image\n")
	fmt.Printf("  scandisk    Check the image for inconsistencies\n")
	fmt.Printf("  help        Print this message\n")
	fmt.Printf("\n")
	fmt.Printf("Run '%s COMMAND --help' for more information on the command\n", prog)
	fmt.Printf("\n")
	fmt.Printf("Options:\n")
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.CommandLine.SetInterspersed(false)
	flagQuiet := pflag.BoolP("quiet", "q", false, "Quiet execution")
	flagVerbose := pflag.BoolP("verbose", "v", false, "Verbose execution")

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal(err)
	}
	applyConfig(cfg)
	level, err := cfg.Level()
	if err != nil {
		log.Fatal(err)
	}

	// Set up logging
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(level)
	pflag.Parse()
	if *flagQuiet && *flagVerbose {
		fmt.Printf("Can't set quiet and verbose flag at the same time\n")
		os.Exit(1)
	}
	if *flagQuiet {
		log.SetLevel(log.ErrorLevel)
	}
	if *flagVerbose || level == log.DebugLevel {
		// Switch back to the standard formatter
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	}

	args := pflag.Args()
	if len(args) < 1 {
		args = []string{"shell"}
	}

	switch args[0] {
	case "shell":
		shell(args[1:])
	case "format":
		format(args[1:])
	case "scandisk":
		scandisk(args[1:])
	case "help":
		usage()
	default:
		fmt.Printf("%q is not valid command.\n\n", args[0])
		usage()
		os.Exit(1)
	}
}
