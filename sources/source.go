package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Source ist das Interface, das jede Bulk-Quelle für Boost-Requests
// implementieren muss. Quellen liefern rohe Master-Pipeline-Nachrichten in
// Seiten, damit der Speicherverbrauch unabhängig von der Gesamtmenge
// beschränkt bleibt.
type Source interface {
	// Next liefert bis zu n rohe Records. Am Ende der Quelle kommt io.EOF,
	// ggf. zusammen mit einer letzten Teilseite.
	Next(ctx context.Context, n int) ([]json.RawMessage, error)

	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. den Dateipfad).
	Name() string

	Close() error
}

// Open wählt die Quelle anhand der Dateiendung.
func Open(path string) (Source, error) {
	switch {
	case strings.HasSuffix(path, ".json"):
		return OpenJSONFile(path)
	case strings.HasSuffix(path, ".csv"):
		return OpenCSVFile(path)
	}
	return nil, fmt.Errorf("unsupported source format: %s (use .json or .csv)", path)
}
