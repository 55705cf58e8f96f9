package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// stdinPath names standard input among the file arguments.
const stdinPath = "-"

// input is one document read from a file argument.
type input struct {
	path string
	text []byte
	mode fs.FileMode
}

// expandArgs resolves file arguments. Glob patterns (including "**") are
// expanded, directories are walked for files of a registered language, and
// "-" stands for standard input.
func (c *cli) expandArgs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if arg == stdinPath {
			out = append(out, arg)
			continue
		}
		if hasMeta(arg) {
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", arg, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match %q", arg)
			}
			out = append(out, matches...)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		found, err := c.walk(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (c *cli) walk(dir string) ([]string, error) {
	var out []string
	registry := c.svc.Registry()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && excludedDir(c.cfg.Watch.Exclude.Dirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := registry.ForPath(path); ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func excludedDir(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func hasMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// readInputs reads every expanded argument. With no arguments it reads
// standard input.
func (c *cli) readInputs(args []string) ([]input, error) {
	if len(args) == 0 {
		args = []string{stdinPath}
	}
	paths, err := c.expandArgs(args)
	if err != nil {
		return nil, err
	}
	inputs := make([]input, 0, len(paths))
	for _, p := range paths {
		if p == stdinPath {
			text, err := io.ReadAll(c.stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			inputs = append(inputs, input{path: p, text: text})
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		text, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input{path: p, text: text, mode: info.Mode().Perm()})
	}
	return inputs, nil
}
