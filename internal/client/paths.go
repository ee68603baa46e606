package client

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

type ParsedPath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs validates the command-line file arguments: every path must exist
// and be readable. Paths are cleaned; kind records whether each is a file or
// a directory.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []ParsedPath

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		kind := PathFile
		if info.IsDir() {
			kind = PathDir
		}

		out = append(out, ParsedPath{FullPath: p, Kind: kind})
	}

	return out, nil
}

// ExpandFiles flattens parsed paths into individual files: plain files pass
// through, directories contribute every regular file beneath them. Uploads
// are one file per call, so directory structure is not preserved.
func ExpandFiles(paths []ParsedPath) ([]string, error) {
	var files []string
	for _, p := range paths {
		if p.Kind == PathFile {
			files = append(files, p.FullPath)
			continue
		}
		err := filepath.WalkDir(p.FullPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, &ValidationError{Arg: p.FullPath, Cause: "not found or not accessible"}
		}
	}
	if len(files) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}
	return files, nil
}
