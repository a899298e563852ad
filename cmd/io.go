package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilianp07/taskalloc/pkg/export"
)

// readRecord loads a record from a .json, .yaml or .yml file.
func readRecord(path string) (export.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return export.Record{}, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return export.ReadJSON(f)
	case ".yaml", ".yml":
		return export.ReadYAML(f)
	default:
		return export.Record{}, fmt.Errorf("unsupported record format: %s", path)
	}
}

// writeRecord encodes rec as json, yaml or csv.
func writeRecord(w io.Writer, rec export.Record, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		return export.WriteJSON(w, rec)
	case "yaml", "yml":
		return export.WriteYAML(w, rec)
	case "csv":
		return export.WriteCSV(w, rec)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// output returns the file at path, or w when path is empty.
func output(w io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
