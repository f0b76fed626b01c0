package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"boost-pipeline/models"
	"boost-pipeline/queue"
)

// Normalizer übersetzt rohe Master-Pipeline-Nachrichten in BoostRequests.
// Die Master-Pipeline liefert bib_data und metrics teils als eingebettete
// JSON-Strings, classifications mal als String, mal als Liste. Unbekannte
// Felder werden ignoriert.
type Normalizer struct {
	Logger *zap.Logger
}

// NewNormalizer erstellt einen neuen Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{Logger: logger}
}

type inboundMessage struct {
	Bibcode         string          `json:"bibcode"`
	ScixID          string          `json:"scix_id"`
	BibData         json.RawMessage `json:"bib_data"`
	Metrics         json.RawMessage `json:"metrics"`
	Classifications json.RawMessage `json:"classifications"`
	Collections     json.RawMessage `json:"collections"`
}

type bibData struct {
	Doctype   string          `json:"doctype"`
	Pubdate   string          `json:"pubdate"`
	EntryDate string          `json:"entry_date"`
	Refereed  bool            `json:"refereed"`
	Database  json.RawMessage `json:"database"`
}

type metricsData struct {
	Refereed bool `json:"refereed"`
}

// Normalize parst eine rohe Nachricht. Fehlt sowohl bibcode als auch
// scix_id, kommt ein Validierungsfehler zurück und der Record wird
// übersprungen.
func (n *Normalizer) Normalize(raw json.RawMessage) (*models.BoostRequest, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, queue.Validation(fmt.Errorf("unparseable message: %w", err))
	}

	req := &models.BoostRequest{
		Bibcode: strings.TrimSpace(msg.Bibcode),
		ScixID:  strings.TrimSpace(msg.ScixID),
	}
	if !req.HasIdentifier() {
		return nil, queue.Validation(fmt.Errorf("record has neither bibcode nor scix_id"))
	}

	var bd bibData
	if ok := n.decodeSection(msg.BibData, &bd, req.Key(), "bib_data"); ok {
		req.Doctype = strings.ToLower(strings.TrimSpace(bd.Doctype))
		req.PubDate = parseDate(bd.Pubdate)
		req.EntryDate = parseDate(bd.EntryDate)
	}

	var md metricsData
	n.decodeSection(msg.Metrics, &md, req.Key(), "metrics")
	req.Refereed = md.Refereed || bd.Refereed

	// Collections: classifications zuerst, dann das collections-Feld,
	// zuletzt bib_data.database.
	req.Collections = stringList(msg.Classifications)
	if len(req.Collections) == 0 {
		req.Collections = stringList(msg.Collections)
	}
	if len(req.Collections) == 0 {
		req.Collections = stringList(bd.Database)
	}
	for i, tag := range req.Collections {
		req.Collections[i] = NormalizeTag(tag)
	}

	return req, nil
}

// decodeSection toleriert Sektionen, die als JSON-Objekt oder als
// JSON-String mit eingebettetem JSON ankommen. Unparsbare Sektionen werden
// als leer behandelt, nicht als Fehler.
func (n *Normalizer) decodeSection(raw json.RawMessage, dst any, key, name string) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dst); err == nil {
		return true
	}
	var embedded string
	if err := json.Unmarshal(raw, &embedded); err == nil && embedded != "" {
		if err := json.Unmarshal([]byte(embedded), dst); err == nil {
			return true
		}
	}
	n.Logger.Warn("Unparseable message section, treating as empty",
		zap.String("record", key), zap.String("section", name))
	return false
}

// stringList akzeptiert einen einzelnen String oder eine String-Liste.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return nonEmpty(list)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

func nonEmpty(list []string) []string {
	out := list[:0]
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeTag bringt einen Collection-Tag in Tabellenform
// (Kleinschreibung, Leerzeichen zu Unterstrichen).
func NormalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), " ", "_")
}

// parseDate parst Datumsangaben der Master-Pipeline. Ein Tag "00" wird wie
// im Bestand durch "01" ersetzt, reine Jahr-Monat-Angaben werden auf den
// Monatsersten gelegt. Unparsbares ergibt nil.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasSuffix(s, "-00") {
		s = s[:len(s)-2] + "01"
	}
	if len(s) == 7 { // YYYY-MM
		s += "-01"
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
