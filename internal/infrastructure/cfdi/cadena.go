// Package cfdi implementa la capa XML del comprobante: render del CFDI 4.0,
// cadena original, gateway de certificados CSD y decodificación de
// comprobantes timbrados.
package cfdi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// Selector del nodo sobre el que se deriva la cadena original.
const (
	SelectorComprobante = "comprobante"
	SelectorTFD         = "tfd"
)

// Orden de atributos por elemento, equivalente a las hojas XSLT
// cadenaoriginal_4_0 y cadenaoriginal_TFD_1_1 del SAT. Sello y Certificado no
// participan en la cadena del comprobante; SelloSAT no participa en la del TFD.
var cadenaAttrOrder = map[string][]string{
	"Comprobante": {
		"Version", "Serie", "Folio", "Fecha", "FormaPago", "NoCertificado",
		"CondicionesDePago", "SubTotal", "Descuento", "Moneda", "TipoCambio",
		"Total", "TipoDeComprobante", "Exportacion", "MetodoPago",
		"LugarExpedicion", "Confirmacion",
	},
	"InformacionGlobal": {"Periodicidad", "Meses", "Año"},
	"CfdiRelacionados":  {"TipoRelacion"},
	"CfdiRelacionado":   {"UUID"},
	"Emisor":            {"Rfc", "Nombre", "RegimenFiscal", "FacAtrAdquirente"},
	"Receptor": {
		"Rfc", "Nombre", "DomicilioFiscalReceptor", "ResidenciaFiscal",
		"NumRegIdTrib", "RegimenFiscalReceptor", "UsoCFDI",
	},
	"Concepto": {
		"ClaveProdServ", "NoIdentificacion", "Cantidad", "ClaveUnidad",
		"Unidad", "Descripcion", "ValorUnitario", "Importe", "Descuento",
		"ObjetoImp",
	},
	"Traslado":  {"Base", "Impuesto", "TipoFactor", "TasaOCuota", "Importe"},
	"Retencion": {"Base", "Impuesto", "TipoFactor", "TasaOCuota", "Importe"},
	"TimbreFiscalDigital": {
		"Version", "UUID", "FechaTimbrado", "RfcProvCertif", "Leyenda",
		"SelloCFD", "NoCertificadoSAT",
	},
	// Complemento de impuestos locales (implocal 1.0).
	"ImpuestosLocales":    {"version", "TotaldeRetenciones", "TotaldeTraslados"},
	"RetencionesLocales":  {"ImpLocRetenido", "TasadeRetencion", "Importe"},
	"TrasladosLocales":    {"ImpLocTrasladado", "TasadeTraslado", "Importe"},
}

// Elementos cuyos hijos no entran a la cadena del comprobante.
var cadenaStopChildren = map[string]bool{
	"TimbreFiscalDigital": true,
}

// BuildCadena deriva la cadena original del árbol dado. Para el selector de
// comprobante recorre todo el árbol excepto el TFD; para el selector TFD usa
// solo el nodo TimbreFiscalDigital. Si el nodo no existe devuelve cadena vacía
// sin error (no hay cadena para ese selector).
func BuildCadena(xmlBytes []byte, selector string) (string, error) {
	canon, err := canonicalize(xmlBytes)
	if err != nil {
		return "", err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(canon); err != nil {
		return "", fmt.Errorf("cadena: parsear XML canónico: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("cadena: documento sin raíz")
	}

	var fields []string
	switch selector {
	case SelectorTFD:
		tfd := findByTag(root, "TimbreFiscalDigital")
		if tfd == nil {
			return "", nil
		}
		collectFields(tfd, &fields, false)
	case SelectorComprobante:
		if root.Tag != "Comprobante" {
			return "", nil
		}
		collectFields(root, &fields, true)
	default:
		return "", fmt.Errorf("cadena: selector desconocido %q", selector)
	}
	return "||" + strings.Join(fields, "|") + "||", nil
}

// canonicalize aplica C14N al documento antes del recorrido, igual que el
// digest previo a la firma.
func canonicalize(xmlBytes []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("cadena: canonicalizar: %w", err)
	}
	return out, nil
}

// collectFields recorrido en profundidad acumulando los valores de atributo en
// el orden de la tabla. skipTFD corta el TFD cuando se deriva la cadena del
// comprobante.
func collectFields(el *etree.Element, fields *[]string, skipTFD bool) {
	if el.Tag == "Impuestos" && el.Parent() != nil && el.Parent().Tag == "Comprobante" {
		collectImpuestos(el, fields, skipTFD)
		return
	}
	if order, ok := cadenaAttrOrder[el.Tag]; ok {
		for _, name := range order {
			if v := selectAttr(el, name); v != "" {
				*fields = append(*fields, v)
			}
		}
	}
	for _, child := range el.ChildElements() {
		if skipTFD && cadenaStopChildren[child.Tag] {
			continue
		}
		collectFields(child, fields, skipTFD)
	}
}

// collectImpuestos el nodo Impuestos del comprobante intercala listas y
// totales según la hoja XSLT: Retenciones, TotalImpuestosRetenidos, Traslados,
// TotalImpuestosTrasladados. El Impuestos de cada Concepto no trae totales y
// sigue el recorrido genérico.
func collectImpuestos(el *etree.Element, fields *[]string, skipTFD bool) {
	if ret := childByTag(el, "Retenciones"); ret != nil {
		collectFields(ret, fields, skipTFD)
	}
	if v := selectAttr(el, "TotalImpuestosRetenidos"); v != "" {
		*fields = append(*fields, v)
	}
	if tra := childByTag(el, "Traslados"); tra != nil {
		collectFields(tra, fields, skipTFD)
	}
	if v := selectAttr(el, "TotalImpuestosTrasladados"); v != "" {
		*fields = append(*fields, v)
	}
}

// childByTag hijo directo con el tag dado, sin importar el namespace.
func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func selectAttr(el *etree.Element, name string) string {
	for _, a := range el.Attr {
		if a.Key == name {
			return a.Value
		}
	}
	return ""
}

// findByTag primer descendiente con el tag dado, sin importar el namespace.
func findByTag(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByTag(child, tag); found != nil {
			return found
		}
	}
	return nil
}
