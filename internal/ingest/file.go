package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadFile reads a .csv or .xlsx file, chosen by extension.
func ReadFile(ctx context.Context, path string) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		t, err = ReadCSV(ctx, path, f, CSVOptions{})
	case ".xlsx":
		t, err = ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ingest: read file",
		zap.String("path", path),
		zap.Int("records", len(t.Records)),
		zap.Int("columns", len(t.Header)),
	)
	return t, nil
}
