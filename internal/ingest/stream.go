package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a supported source file layout.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for file extensions with no reader.
var ErrUnsupportedFormat = eris.New("ingest: unsupported file format")

// ErrEmptyFile is returned when a tabular file has no header row.
var ErrEmptyFile = eris.New("ingest: file has no header row")

// DetectFormat picks a reader from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", eris.Wrapf(ErrUnsupportedFormat, "%s", filepath.Base(path))
	}
}

// ReadHeader returns the first row of a tabular file.
func ReadHeader(ctx context.Context, path string, format Format) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows, errCh, closeFn, err := openRows(ctx, path, format)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	header, ok := <-rows
	cancel()
	for range rows { //nolint:revive // drain
	}
	if !ok {
		for err := range errCh {
			if err != nil {
				return nil, err
			}
		}
		return nil, eris.Wrapf(ErrEmptyFile, "%s", filepath.Base(path))
	}
	return header, nil
}

// Stream converts every data row of path into T. Tabular formats map their
// header through MapHeader and convert rows with fromRow; JSON files decode
// an array of T directly.
func Stream[T any](ctx context.Context, path string, format Format, fromRow func(Columns, []string) T) (<-chan T, <-chan error) {
	out := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if format == FormatJSON {
			f, err := os.Open(path)
			if err != nil {
				errCh <- eris.Wrapf(err, "ingest: open %s", path)
				return
			}
			defer f.Close() //nolint:errcheck
			items, itemErr := DecodeJSONArray[T](ctx, f)
			for item := range items {
				select {
				case out <- item:
				case <-ctx.Done():
					errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
					return
				}
			}
			for err := range itemErr {
				if err != nil {
					errCh <- err
					return
				}
			}
			return
		}

		rows, rowErr, closeFn, err := openRows(ctx, path, format)
		if err != nil {
			errCh <- err
			return
		}
		defer closeFn()

		var cols Columns
		for row := range rows {
			if cols == nil {
				if cols, err = MapHeader(row); err != nil {
					errCh <- err
					return
				}
				continue
			}
			select {
			case out <- fromRow(cols, row):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
		for err := range rowErr {
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	return out, errCh
}

func openRows(ctx context.Context, path string, format Format) (<-chan []string, <-chan error, func(), error) {
	switch format {
	case FormatCSV, FormatTSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		opts := CSVOptions{LazyQuotes: true, TrimSpace: true}
		if format == FormatTSV {
			opts.Delimiter = '\t'
		}
		rows, errCh := StreamCSV(ctx, f, opts)
		return rows, errCh, func() { f.Close() }, nil //nolint:errcheck
	case FormatXLSX:
		rows, errCh := StreamXLSX(ctx, path, XLSXOptions{})
		return rows, errCh, func() {}, nil
	default:
		return nil, nil, nil, eris.Wrapf(ErrUnsupportedFormat, "%s has no row reader", format)
	}
}
