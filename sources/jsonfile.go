package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONFile streamt Records aus einer Datei mit einem JSON-Array von
// Master-Pipeline-Nachrichten. Das Array wird Token für Token gelesen, die
// Datei muss nie komplett in den Speicher.
type JSONFile struct {
	path string
	file *os.File
	dec  *json.Decoder
}

// OpenJSONFile öffnet die Datei und konsumiert die öffnende Array-Klammer.
func OpenJSONFile(path string) (*JSONFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(file)
	tok, err := dec.Token()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		file.Close()
		return nil, fmt.Errorf("%s: expected a JSON array of records", path)
	}

	return &JSONFile{path: path, file: file, dec: dec}, nil
}

// Next liefert die nächste Seite von bis zu n Records.
func (s *JSONFile) Next(ctx context.Context, n int) ([]json.RawMessage, error) {
	var page []json.RawMessage
	for len(page) < n && s.dec.More() {
		select {
		case <-ctx.Done():
			return page, ctx.Err()
		default:
		}

		var raw json.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			return page, fmt.Errorf("decoding record in %s: %w", s.path, err)
		}
		page = append(page, raw)
	}
	if !s.dec.More() {
		return page, io.EOF
	}
	return page, nil
}

// Name gibt den Dateipfad zurück.
func (s *JSONFile) Name() string {
	return s.path
}

// Close schließt die Datei.
func (s *JSONFile) Close() error {
	return s.file.Close()
}
