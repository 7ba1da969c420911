package entity

import (
	"strings"
	"time"
)

// FolioSequence secuencia de folios de factura global, una por empresa raíz.
// NumberNext es monótono no decreciente; solo lo muta el firmado exitoso de
// una global y un folio consumido jamás se reutiliza.
type FolioSequence struct {
	ID         string
	CompanyID  string // empresa raíz
	Prefix     string // ej. "GI/%(year)s/"
	Suffix     string
	Padding    int
	NumberNext int64
	UpdatedAt  time.Time
}

// FormatSerie expande el prefijo y sufijo con la fecha dada (serie del CFDI).
func (s *FolioSequence) FormatSerie(date time.Time) string {
	return expandSequence(s.Prefix, date) + expandSequence(s.Suffix, date)
}

func expandSequence(pattern string, date time.Time) string {
	return strings.NewReplacer(
		"%(year)s", date.Format("2006"),
		"%(month)s", date.Format("01"),
		"%(day)s", date.Format("02"),
	).Replace(pattern)
}
