package sat

import (
	"regexp"
	"strings"
)

// Patrón de RFC: 3 o 4 letras (persona moral / física), fecha AAMMDD y
// homoclave de 3 caracteres.
var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}$`)

// NormalizeRFC limpia espacios y convierte a mayúsculas.
func NormalizeRFC(rfc string) string {
	return strings.ToUpper(strings.TrimSpace(rfc))
}

// ValidRFC indica si el RFC tiene estructura válida (no verifica homoclave).
func ValidRFC(rfc string) bool {
	return rfcPattern.MatchString(NormalizeRFC(rfc))
}

// IsGenericRFC indica si el RFC es uno de los genéricos del SAT
// (nacional o extranjero).
func IsGenericRFC(rfc string) bool {
	n := NormalizeRFC(rfc)
	return n == RFCPublicoGeneral || n == RFCExtranjero
}

// IsForeignRFC indica si el RFC corresponde al genérico de extranjeros.
func IsForeignRFC(rfc string) bool {
	return NormalizeRFC(rfc) == RFCExtranjero
}
