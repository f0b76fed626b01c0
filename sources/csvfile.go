package sources

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// CSVFile streamt Records aus einer CSV-Datei. Die Kopfzeile liefert die
// Feldnamen, jede Datenzeile wird in ein flaches JSON-Objekt übersetzt, das
// der Normalizer wie eine Master-Pipeline-Nachricht behandelt.
type CSVFile struct {
	path   string
	file   *os.File
	reader *csv.Reader
	header []string
}

// OpenCSVFile öffnet die Datei und liest die Kopfzeile.
func OpenCSVFile(path string) (*CSVFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	return &CSVFile{path: path, file: file, reader: reader, header: header}, nil
}

// Next liefert die nächste Seite von bis zu n Records.
func (s *CSVFile) Next(ctx context.Context, n int) ([]json.RawMessage, error) {
	var page []json.RawMessage
	for len(page) < n {
		select {
		case <-ctx.Done():
			return page, ctx.Err()
		default:
		}

		row, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return page, io.EOF
		}
		if err != nil {
			return page, fmt.Errorf("reading row in %s: %w", s.path, err)
		}

		record := make(map[string]string, len(s.header))
		for i, field := range s.header {
			if i < len(row) {
				record[field] = row[i]
			}
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return page, fmt.Errorf("encoding row in %s: %w", s.path, err)
		}
		page = append(page, raw)
	}
	return page, nil
}

// Name gibt den Dateipfad zurück.
func (s *CSVFile) Name() string {
	return s.path
}

// Close schließt die Datei.
func (s *CSVFile) Close() error {
	return s.file.Close()
}
