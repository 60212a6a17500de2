// Package shell implements the memfat command language: one command per
// line, operating on a working directory of a fat.Volume.
package shell

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/memfat/memfat/fat"
	"github.com/memfat/memfat/humanize"
)

// ErrUsage is returned for lines which do not parse as a command.
var ErrUsage = errors.New("usage")

const help = `commands:
  pwd                     print the working directory
  cd PATH                 change the working directory
  ls                      list the working directory
  mkdir NAME              create a directory
  touch NAME              create an empty file
  cat NAME                print a file
  get NAME START END      print bytes [START, END) of a file
  write NAME AMT HEX      replace a file with AMT bytes given in hex
  append NAME AMT HEX     append AMT bytes given in hex to a file
  remove NAME START END   cut bytes [START, END) out of a file
  rm NAME                 delete a file
  rmdir NAME              delete an empty directory
  rm -rf NAME             delete a file or a directory tree
  undelete NAME           restore a deleted file or directory
  getpages NAME           print the clusters of a file
  dump N                  hex dump sector N
  dump FILE N             write sector N to the host file FILE
  usage                   print how the volume space is used
  scandisk [truncate|adopt]
                          check the volume, optionally repairing orphans
  help                    print this message
  quit                    leave the shell
`

// Shell reads commands and runs them against Volume.
type Shell struct {
	Volume *fat.Volume
	// Fs receives the files written by "dump FILE N".
	Fs afero.Fs
	// Prompt is printed before every line if non-empty.
	Prompt string
	Out    io.Writer
	Log    logrus.FieldLogger

	cwd fat.Dir
}

// New returns a Shell in the root directory of v.
func New(v *fat.Volume, fsys afero.Fs, out io.Writer) *Shell {
	log := logrus.New()
	log.Out = io.Discard
	return &Shell{
		Volume: v,
		Fs:     fsys,
		Out:    out,
		Log:    log,
		cwd:    v.Root(),
	}
}

// Run executes the lines of in until "quit" or the end of input. Failing
// commands print their error and do not stop the shell.
func (s *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if s.Prompt != "" {
			fmt.Fprint(s.Out, s.Prompt)
		}
		if !scanner.Scan() {
			break
		}
		quit, err := s.Exec(scanner.Text())
		if err != nil {
			fmt.Fprintln(s.Out, err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// splitTail splits the last n space separated fields off args. The
// remainder, which may contain spaces, is returned first.
func splitTail(args string, n int) (string, []string, bool) {
	tail := make([]string, n)
	for i := n - 1; i >= 0; i-- {
		idx := strings.LastIndexByte(args, ' ')
		if idx < 0 {
			return "", nil, false
		}
		tail[i] = args[idx+1:]
		args = strings.TrimRight(args[:idx], " ")
	}
	if args == "" {
		return "", nil, false
	}
	return args, tail, true
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(ErrUsage, "%q is not a non-negative number", s)
	}
	return n, nil
}

// nameAndRange parses "NAME START END".
func nameAndRange(cmd, args string) (name string, start, end int, err error) {
	name, tail, ok := splitTail(args, 2)
	if !ok {
		return "", 0, 0, errors.Wrapf(ErrUsage, "%s NAME START END", cmd)
	}
	if start, err = atoi(tail[0]); err != nil {
		return "", 0, 0, err
	}
	if end, err = atoi(tail[1]); err != nil {
		return "", 0, 0, err
	}
	return name, start, end, nil
}

// nameAndData parses "NAME AMT HEX" and returns the first AMT decoded
// bytes.
func nameAndData(cmd, args string) (string, []byte, error) {
	name, tail, ok := splitTail(args, 2)
	if !ok {
		return "", nil, errors.Wrapf(ErrUsage, "%s NAME AMT HEX", cmd)
	}
	amt, err := atoi(tail[0])
	if err != nil {
		return "", nil, err
	}
	data, err := hex.DecodeString(tail[1])
	if err != nil {
		return "", nil, errors.Wrapf(ErrUsage, "%s: %v", cmd, err)
	}
	if len(data) < amt {
		return "", nil, errors.Wrapf(ErrUsage, "%s: %d bytes requested, %d given", cmd, amt, len(data))
	}
	return name, data[:amt], nil
}

// Exec runs a single command line. quit is set when the line asks to
// leave the shell.
func (s *Shell) Exec(line string) (quit bool, _ error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	cmd, args := line, ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		cmd, args = line[:idx], strings.TrimSpace(line[idx+1:])
	}
	if cmd == "rm" && strings.HasPrefix(args, "-rf ") {
		cmd, args = "rm -rf", strings.TrimSpace(args[len("-rf "):])
	}
	s.Log.WithFields(logrus.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("exec")

	needName := func() error {
		if args == "" {
			return errors.Wrapf(ErrUsage, "%s NAME", cmd)
		}
		return nil
	}
	v := s.Volume
	switch cmd {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Fprint(s.Out, help)
		return false, nil

	case "pwd":
		p, err := v.Pwd(s.cwd)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.Out, p)
		return false, nil

	case "cd":
		if err := needName(); err != nil {
			return false, err
		}
		d, err := v.Cd(s.cwd, args)
		if err != nil {
			return false, err
		}
		s.cwd = d
		return false, nil

	case "ls":
		entries, err := v.List(s.cwd)
		if err != nil {
			return false, err
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		fmt.Fprintln(s.Out, strings.Join(names, "\t"))
		return false, nil

	case "mkdir", "touch":
		if err := needName(); err != nil {
			return false, err
		}
		_, err := v.Create(s.cwd, args, cmd == "mkdir")
		return false, err

	case "cat":
		if err := needName(); err != nil {
			return false, err
		}
		b, err := v.Cat(s.cwd, args)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.Out, "%s\n", b)
		return false, nil

	case "get":
		name, start, end, err := nameAndRange(cmd, args)
		if err != nil {
			return false, err
		}
		b, err := v.ReadRange(s.cwd, name, start, end)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.Out, "%s\n", b)
		return false, nil

	case "write", "append":
		name, data, err := nameAndData(cmd, args)
		if err != nil {
			return false, err
		}
		if cmd == "write" {
			return false, v.Write(s.cwd, name, data)
		}
		return false, v.Append(s.cwd, name, data)

	case "remove":
		name, start, end, err := nameAndRange(cmd, args)
		if err != nil {
			return false, err
		}
		return false, v.RemoveRange(s.cwd, name, start, end)

	case "rm":
		if err := needName(); err != nil {
			return false, err
		}
		return false, v.Remove(s.cwd, args)

	case "rmdir":
		if err := needName(); err != nil {
			return false, err
		}
		return false, v.RemoveDir(s.cwd, args)

	case "rm -rf":
		if err := needName(); err != nil {
			return false, err
		}
		return false, v.RemoveAll(s.cwd, args)

	case "undelete":
		if err := needName(); err != nil {
			return false, err
		}
		return false, v.Undelete(s.cwd, args)

	case "getpages":
		if err := needName(); err != nil {
			return false, err
		}
		pages, err := v.Pages(s.cwd, args)
		if err != nil {
			return false, err
		}
		strs := make([]string, len(pages))
		for i, p := range pages {
			strs[i] = strconv.Itoa(int(p))
		}
		fmt.Fprintln(s.Out, strings.Join(strs, " "))
		return false, nil

	case "dump":
		return false, s.dump(args)

	case "usage":
		s.usage()
		return false, nil

	case "scandisk":
		return false, s.scandisk(args)
	}
	return false, errors.Wrapf(ErrUsage, "unknown command %q, try help", cmd)
}

func (s *Shell) dump(args string) error {
	if n, err := strconv.Atoi(args); err == nil {
		page, err := s.Volume.Page(n)
		if err != nil {
			return err
		}
		fmt.Fprint(s.Out, hex.Dump(page))
		return nil
	}
	filename, tail, ok := splitTail(args, 1)
	if !ok {
		return errors.Wrap(ErrUsage, "dump N | dump FILE N")
	}
	n, err := atoi(tail[0])
	if err != nil {
		return err
	}
	page, err := s.Volume.Page(n)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.Fs, filename, page, 0644); err != nil {
		return errors.Wrapf(err, "dump %s", filename)
	}
	return nil
}

func (s *Shell) usage() {
	u := s.Volume.Usage()
	for _, l := range []struct {
		n    int
		what string
	}{
		{u.SystemBytes, "used by system"},
		{u.UsedBytes, "used by files"},
		{u.DeletedBytes, "held by deleted files"},
		{u.FreeBytes, "free"},
	} {
		fmt.Fprintf(s.Out, "%d bytes (%s) %s\n", l.n, humanize.Bytes(uint64(l.n)), l.what)
	}
}

func (s *Shell) scandisk(args string) error {
	var repair fat.Repair
	switch args {
	case "":
		repair = fat.RepairNone
	case "truncate":
		repair = fat.RepairTruncate
	case "adopt":
		repair = fat.RepairAdopt
	default:
		return errors.Wrap(ErrUsage, "scandisk [truncate|adopt]")
	}
	report, err := s.Volume.Scandisk(repair)
	if err != nil {
		return err
	}
	for _, p := range report.Problems {
		fmt.Fprintln(s.Out, p)
	}
	if report.Clean() {
		fmt.Fprintln(s.Out, "no problems found")
		return nil
	}
	fmt.Fprintf(s.Out, "%d problems, %d clusters repaired\n", len(report.Problems), report.Repaired)
	for _, name := range report.Adopted {
		fmt.Fprintf(s.Out, "adopted %s\n", name)
	}
	return nil
}
