// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package labels loads the ordered list of human-readable class names
// that accompanies a dataset. The position of a name in the file is its
// class id. Lines are kept verbatim, duplicates included: a file that
// lists a class twice yields a catalog with that class twice.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/bureau-foundation/shardset/lib/dataset"
)

// maxLineSize bounds a single class name. bufio.Scanner's default of
// 64 KiB is too small for some generated label files.
const maxLineSize = 1 << 20

// Catalog is an ordered sequence of class names; index = class id.
type Catalog []string

// Len returns the number of entries, duplicates included.
func (c Catalog) Len() int { return len(c) }

// Name returns the name for class id, or "class <id>" when the catalog
// has no entry for it.
func (c Catalog) Name(id int) string {
	if id >= 0 && id < len(c) {
		return c[id]
	}
	return fmt.Sprintf("class %d", id)
}

// Load reads the label file at path. A missing file is reported as a
// *dataset.LabelFileMissingError; any other read failure is returned
// wrapped.
func Load(path string) (Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &dataset.LabelFileMissingError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("opening label file: %w", err)
	}
	defer file.Close()

	catalog, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("reading label file %s: %w", path, err)
	}
	return catalog, nil
}

// LoadAllowMissing is Load for callers that can proceed without class
// names: a missing file yields an empty catalog and no error. All other
// failures still propagate.
func LoadAllowMissing(path string) (Catalog, error) {
	catalog, err := Load(path)
	if errors.Is(err, dataset.ErrLabelFileMissing) {
		return Catalog{}, nil
	}
	return catalog, err
}

// Parse reads one class name per line. Carriage returns before the
// newline are dropped. Blank lines at the end of the input terminate
// the list and are not classes; blank lines between names are kept.
func Parse(reader io.Reader) (Catalog, error) {
	var catalog Catalog
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		catalog = append(catalog, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for len(catalog) > 0 && strings.TrimSpace(catalog[len(catalog)-1]) == "" {
		catalog = catalog[:len(catalog)-1]
	}
	if catalog == nil {
		catalog = Catalog{}
	}
	return catalog, nil
}
