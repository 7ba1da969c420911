package cfdi

import (
	"fmt"
	"strings"

	"github.com/jhoicas/cfdi-api/pkg/sat"
)

// Origin relación del CFDI con comprobantes previos (TipoRelacion +
// CfdiRelacionados). Se persiste en attachment_origin como
// "<código>|uuid,uuid,...". Inmutable una vez escrita.
type Origin struct {
	RelationCode string
	UUIDs        []string
}

// ParseOrigin interpreta attachment_origin. Devuelve (nil, nil) si el campo
// está vacío o el código no está en 01..07 (origen sin relación útil).
func ParseOrigin(raw string) (*Origin, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("cfdi: attachment_origin malformado: %q", raw)
	}
	code := strings.TrimSpace(parts[0])
	if !sat.ValidRelationCode(code) {
		return nil, nil
	}
	var uuids []string
	for _, u := range strings.Split(parts[1], ",") {
		if u = strings.TrimSpace(u); u != "" {
			uuids = append(uuids, u)
		}
	}
	if len(uuids) == 0 {
		return nil, nil
	}
	return &Origin{RelationCode: code, UUIDs: uuids}, nil
}

// Encode serializa el origen al formato persistible.
func (o *Origin) Encode() string {
	if o == nil || len(o.UUIDs) == 0 {
		return ""
	}
	return o.RelationCode + "|" + strings.Join(o.UUIDs, ",")
}
