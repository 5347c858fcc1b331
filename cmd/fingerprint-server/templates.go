package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
	jsoniter "github.com/json-iterator/go"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/extract"
)

// imageExts are the file extensions read as images rather than templates.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".wsq": true,
	".pgm": true, ".pbm": true, ".pnm": true,
}

// loader reads templates from disk. Image files go through the extractor.
type loader struct {
	creator *extract.Creator
}

func (l loader) load(path string) (*fingerprint.Template, error) {
	if imageExts[strings.ToLower(filepath.Ext(path))] {
		img, err := extract.LoadImage(path)
		if err != nil {
			return nil, err
		}
		t, err := l.creator.Template(img)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := fingerprint.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// roster loads every regular file in dir. The person id is the file name
// without its extension; entries are ordered by person id.
func (l loader) roster(dir string) (fingerprint.Roster, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(entries))
	ids := treeset.NewWithStringComparator()
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id := personID(e.Name())
		if prev, dup := files[id]; dup {
			return nil, fmt.Errorf("%s and %s: %w", prev, e.Name(), &fingerprint.DuplicatePersonError{PersonID: id})
		}
		files[id] = e.Name()
		ids.Add(id)
	}

	roster := make(fingerprint.Roster, 0, ids.Size())
	for _, v := range ids.Values() {
		id := v.(string)
		t, err := l.load(filepath.Join(dir, files[id]))
		if err != nil {
			return nil, err
		}
		roster = append(roster, fingerprint.RosterEntry{PersonID: id, Template: t})
	}
	return roster, nil
}

func personID(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func printJSON(w io.Writer, v any) error {
	out, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
