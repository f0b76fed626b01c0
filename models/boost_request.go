package models

import (
	"time"
)

// BoostRequest ist die normalisierte Eingabe für die Boost-Berechnung.
// Innerhalb der Pipeline read-only; bibcode/scix_id sind unveränderlich.
type BoostRequest struct {
	Bibcode     string     `json:"bibcode"`
	ScixID      string     `json:"scix_id"`
	Refereed    bool       `json:"refereed"`
	Doctype     string     `json:"doctype"`
	PubDate     *time.Time `json:"pub_date,omitempty"`
	EntryDate   *time.Time `json:"entry_date,omitempty"`
	Collections []string   `json:"collections,omitempty"`
}

// HasIdentifier meldet, ob mindestens einer der beiden Schlüssel gesetzt ist.
func (r *BoostRequest) HasIdentifier() bool {
	return r.Bibcode != "" || r.ScixID != ""
}

// Key gibt den primären Schlüssel für Logging zurück (bibcode vor scix_id).
func (r *BoostRequest) Key() string {
	if r.Bibcode != "" {
		return r.Bibcode
	}
	return r.ScixID
}

// ReferenceDate gibt das frühere der beiden Daten zurück, oder nil wenn
// keines gesetzt ist. Basis für den Recency-Boost.
func (r *BoostRequest) ReferenceDate() *time.Time {
	switch {
	case r.PubDate != nil && r.EntryDate != nil:
		if r.EntryDate.Before(*r.PubDate) {
			return r.EntryDate
		}
		return r.PubDate
	case r.PubDate != nil:
		return r.PubDate
	case r.EntryDate != nil:
		return r.EntryDate
	}
	return nil
}
