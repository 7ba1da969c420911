// Package cfdi contiene los algoritmos puros del motor CFDI 4.0: limpieza de
// razones sociales, codificación de relaciones, reparto de líneas negativas y
// la máquina de estados del ciclo de vida del documento.
package cfdi

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// El SAT valida el atributo Nombre contra la razón social registrada SIN el
// régimen societario; este regex recorta los sufijos societarios más comunes.
var legalFormSuffix = regexp.MustCompile(`(?i)\s*(?:` +
	`s\.?\s*a\.?\s*(?:de\s*)?c\.?\s*v\.?` +
	`|s\.?\s*(?:de\s*)?r\.?\s*l\.?\s*(?:de\s*)?(?:c\.?\s*v\.?)?` +
	`|s\.?\s*en\s*c\.?(?:\s*por\s*a\.?)?` +
	`|s\.?\s*c\.?\s*l\.?` +
	`|s\.?\s*a\.?\s*s\.?` +
	`|s\.?\s*a\.?\s*p\.?\s*i\.?\s*(?:de\s*)?c\.?\s*v\.?` +
	`|s\.?\s*n\.?\s*c\.?` +
	`|a\.?\s*c\.?` +
	`|s\.?\s*c\.?` +
	`)\s*\.?\s*$`)

// SanitizeLegalName limpia una razón social para Emisor/Receptor: recorta el
// sufijo societario, elimina pipes (separador de la cadena original), colapsa
// espacios y convierte a mayúsculas.
func SanitizeLegalName(name string) string {
	name = strings.TrimSpace(name)
	name = legalFormSuffix.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "|", "")
	name = strings.Join(strings.Fields(name), " ")
	return strings.ToUpper(name)
}

// SanitizeText saneador general de campos de texto del CFDI: sin pipes,
// recortado y acotado a maxLen runas (0 = sin límite).
func SanitizeText(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "|", "")
	s = strings.TrimSpace(s)
	if maxLen > 0 {
		r := []rune(s)
		if len(r) > maxLen {
			s = strings.TrimSpace(string(r[:maxLen]))
		}
	}
	return s
}

var accentStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// StripAccents quita diacríticos (Ñ se conserva fuera de esta función por el
// caller cuando aplica). Se usa para comparar nombres sin acentos.
func StripAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}
