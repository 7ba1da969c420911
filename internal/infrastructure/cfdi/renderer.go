package cfdi

import (
	"bytes"
	"context"
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
)

var decimalZero = decimal.Zero

// Namespaces oficiales CFDI 4.0 e impuestos locales (implocal 1.0).
const (
	NsCfdi     = "http://www.sat.gob.mx/cfd/4"
	NsImplocal = "http://www.sat.gob.mx/implocal"
	NsTfd      = "http://www.sat.gob.mx/TimbreFiscalDigital"
	nsXsi      = "http://www.w3.org/2001/XMLSchema-instance"

	xsdCfdi     = "http://www.sat.gob.mx/sitio_internet/cfd/4/cfdv40.xsd"
	xsdImplocal = "http://www.sat.gob.mx/sitio_internet/cfd/implocal/implocal.xsd"

	// Declaración fija con comillas dobles; algunos PAC rechazan la variante
	// con comillas simples que emiten ciertos serializadores.
	xmlDeclaration = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"
)

// Renderer produce el XML CFDI 4.0 sellado a partir de los valores
// ensamblados: arma el árbol, deriva la cadena original, firma con el CSD y
// escribe el Sello sobre la raíz.
type Renderer struct{}

// NewRenderer construye el renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// Render implementa invoicing.Renderer.
func (r *Renderer) Render(_ context.Context, v *invoicing.Values, cert invoicing.SigningCertificate) ([]byte, error) {
	if v.HasErrors() {
		return nil, fmt.Errorf("render: valores con errores de ensamblado")
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("cfdi:Comprobante")
	root.CreateAttr("xmlns:cfdi", NsCfdi)
	root.CreateAttr("xmlns:xsi", nsXsi)

	// El schemaLocation solo declara los namespaces realmente usados en el
	// árbol; varios validadores rechazan pares declarados sin uso.
	hasLocal := len(v.LocalTraslados) > 0 || len(v.LocalRetenciones) > 0
	schemaLocation := NsCfdi + " " + xsdCfdi
	if hasLocal {
		root.CreateAttr("xmlns:implocal", NsImplocal)
		schemaLocation += " " + NsImplocal + " " + xsdImplocal
	}
	root.CreateAttr("xsi:schemaLocation", schemaLocation)

	root.CreateAttr("Version", "4.0")
	if v.Serie != "" {
		root.CreateAttr("Serie", v.Serie)
	}
	if v.Folio != "" {
		root.CreateAttr("Folio", v.Folio)
	}
	root.CreateAttr("Fecha", v.Fecha)
	root.CreateAttr("Sello", "")
	if v.FormaPago != "" {
		root.CreateAttr("FormaPago", v.FormaPago)
	}
	root.CreateAttr("NoCertificado", v.Certificate.NoCertificado)
	root.CreateAttr("Certificado", v.Certificate.Certificado)
	root.CreateAttr("SubTotal", v.Format(v.Subtotal))
	if v.Descuento != nil {
		root.CreateAttr("Descuento", v.Format(*v.Descuento))
	}
	root.CreateAttr("Moneda", v.Moneda)
	if v.TipoCambio != nil {
		root.CreateAttr("TipoCambio", v.TipoCambio.StringFixed(6))
	}
	root.CreateAttr("Total", v.Format(v.Total))
	root.CreateAttr("TipoDeComprobante", v.TipoDeComprobante)
	root.CreateAttr("Exportacion", v.Exportacion)
	if v.MetodoPago != "" {
		root.CreateAttr("MetodoPago", v.MetodoPago)
	}
	root.CreateAttr("LugarExpedicion", v.LugarExpedicion)

	if g := v.InformacionGlobal; g != nil {
		ig := root.CreateElement("cfdi:InformacionGlobal")
		ig.CreateAttr("Periodicidad", g.Periodicidad)
		ig.CreateAttr("Meses", g.Meses)
		ig.CreateAttr("Año", g.Ano)
	}

	if v.TipoRelacion != "" && len(v.CfdiRelacionados) > 0 {
		rel := root.CreateElement("cfdi:CfdiRelacionados")
		rel.CreateAttr("TipoRelacion", v.TipoRelacion)
		for _, u := range v.CfdiRelacionados {
			rel.CreateElement("cfdi:CfdiRelacionado").CreateAttr("UUID", u)
		}
	}

	emisor := root.CreateElement("cfdi:Emisor")
	emisor.CreateAttr("Rfc", v.Emisor.Rfc)
	emisor.CreateAttr("Nombre", v.Emisor.Nombre)
	emisor.CreateAttr("RegimenFiscal", v.Emisor.RegimenFiscal)

	receptor := root.CreateElement("cfdi:Receptor")
	receptor.CreateAttr("Rfc", v.Receptor.Rfc)
	receptor.CreateAttr("Nombre", v.Receptor.Nombre)
	receptor.CreateAttr("DomicilioFiscalReceptor", v.Receptor.DomicilioFiscal)
	if v.Receptor.ResidenciaFiscal != "" {
		receptor.CreateAttr("ResidenciaFiscal", v.Receptor.ResidenciaFiscal)
	}
	receptor.CreateAttr("RegimenFiscalReceptor", v.Receptor.RegimenFiscal)
	receptor.CreateAttr("UsoCFDI", v.Receptor.UsoCfdi)

	r.writeConceptos(root, v)
	r.writeImpuestos(root, v)
	if hasLocal {
		r.writeImpLocal(root, v)
	}

	// Cadena original sobre el árbol sin sello y firma con el CSD.
	unsigned, err := serialize(doc)
	if err != nil {
		return nil, err
	}
	cadena, err := BuildCadena(unsigned, SelectorComprobante)
	if err != nil {
		return nil, err
	}
	sello, err := cert.Sign(cadena)
	if err != nil {
		return nil, err
	}
	root.RemoveAttr("Sello")
	root.CreateAttr("Sello", sello)

	return serialize(doc)
}

func (r *Renderer) writeConceptos(root *etree.Element, v *invoicing.Values) {
	conceptos := root.CreateElement("cfdi:Conceptos")
	for _, c := range v.Conceptos {
		el := conceptos.CreateElement("cfdi:Concepto")
		el.CreateAttr("ClaveProdServ", c.ClaveProdServ)
		if c.NoIdentificacion != "" {
			el.CreateAttr("NoIdentificacion", c.NoIdentificacion)
		}
		el.CreateAttr("Cantidad", c.Cantidad.String())
		el.CreateAttr("ClaveUnidad", c.ClaveUnidad)
		if c.Unidad != "" {
			el.CreateAttr("Unidad", c.Unidad)
		}
		el.CreateAttr("Descripcion", c.Descripcion)
		el.CreateAttr("ValorUnitario", v.Format(c.ValorUnitario))
		el.CreateAttr("Importe", v.Format(c.Importe))
		if c.Descuento != nil {
			el.CreateAttr("Descuento", v.Format(*c.Descuento))
		}
		el.CreateAttr("ObjetoImp", c.ObjetoImp)

		if len(c.Traslados) == 0 && len(c.Retenciones) == 0 {
			continue
		}
		imp := el.CreateElement("cfdi:Impuestos")
		if len(c.Traslados) > 0 {
			tras := imp.CreateElement("cfdi:Traslados")
			for _, t := range c.Traslados {
				r.writeTaxEntry(tras.CreateElement("cfdi:Traslado"), v, t, true)
			}
		}
		if len(c.Retenciones) > 0 {
			ret := imp.CreateElement("cfdi:Retenciones")
			for _, t := range c.Retenciones {
				r.writeTaxEntry(ret.CreateElement("cfdi:Retencion"), v, t, true)
			}
		}
	}
}

// writeImpuestos resumen de impuestos federales a nivel comprobante. El orden
// del esquema es Retenciones antes que Traslados.
func (r *Renderer) writeImpuestos(root *etree.Element, v *invoicing.Values) {
	if len(v.Traslados) == 0 && len(v.Retenciones) == 0 {
		return
	}
	imp := root.CreateElement("cfdi:Impuestos")
	if v.TotalImpuestosRetenidos != nil {
		imp.CreateAttr("TotalImpuestosRetenidos", v.Format(*v.TotalImpuestosRetenidos))
	}
	if v.TotalImpuestosTrasladados != nil {
		imp.CreateAttr("TotalImpuestosTrasladados", v.Format(*v.TotalImpuestosTrasladados))
	}
	if len(v.Retenciones) > 0 {
		ret := imp.CreateElement("cfdi:Retenciones")
		for _, t := range v.Retenciones {
			el := ret.CreateElement("cfdi:Retencion")
			el.CreateAttr("Impuesto", t.Impuesto)
			if t.Importe != nil {
				el.CreateAttr("Importe", v.Format(*t.Importe))
			}
		}
	}
	if len(v.Traslados) > 0 {
		tras := imp.CreateElement("cfdi:Traslados")
		for _, t := range v.Traslados {
			r.writeTaxEntry(tras.CreateElement("cfdi:Traslado"), v, t, true)
		}
	}
}

// writeTaxEntry atributos comunes de Traslado/Retencion; Exento suprime
// TasaOCuota e Importe.
func (r *Renderer) writeTaxEntry(el *etree.Element, v *invoicing.Values, t invoicing.TaxEntry, withBase bool) {
	if withBase {
		el.CreateAttr("Base", v.Format(t.Base))
	}
	el.CreateAttr("Impuesto", t.Impuesto)
	el.CreateAttr("TipoFactor", t.TipoFactor)
	if t.TasaOCuota != nil {
		el.CreateAttr("TasaOCuota", t.TasaOCuota.StringFixed(6))
	}
	if t.Importe != nil {
		el.CreateAttr("Importe", v.Format(*t.Importe))
	}
}

// writeImpLocal complemento implocal 1.0 con los impuestos locales.
func (r *Renderer) writeImpLocal(root *etree.Element, v *invoicing.Values) {
	comp := root.CreateElement("cfdi:Complemento")
	local := comp.CreateElement("implocal:ImpuestosLocales")
	local.CreateAttr("version", "1.0")
	if v.TotalLocalRetenidos != nil {
		local.CreateAttr("TotaldeRetenciones", v.Format(*v.TotalLocalRetenidos))
	} else {
		local.CreateAttr("TotaldeRetenciones", v.Format(decimalZero))
	}
	if v.TotalLocalTrasladados != nil {
		local.CreateAttr("TotaldeTraslados", v.Format(*v.TotalLocalTrasladados))
	} else {
		local.CreateAttr("TotaldeTraslados", v.Format(decimalZero))
	}
	for _, t := range v.LocalRetenciones {
		el := local.CreateElement("implocal:RetencionesLocales")
		el.CreateAttr("ImpLocRetenido", t.Nombre)
		if t.Tasade != nil {
			el.CreateAttr("TasadeRetencion", t.Tasade.StringFixed(2))
		}
		if t.Importe != nil {
			el.CreateAttr("Importe", v.Format(*t.Importe))
		}
	}
	for _, t := range v.LocalTraslados {
		el := local.CreateElement("implocal:TrasladosLocales")
		el.CreateAttr("ImpLocTrasladado", t.Nombre)
		if t.Tasade != nil {
			el.CreateAttr("TasadeTraslado", t.Tasade.StringFixed(2))
		}
		if t.Importe != nil {
			el.CreateAttr("Importe", v.Format(*t.Importe))
		}
	}
}

// serialize indentado de dos espacios con la declaración fija al frente.
func serialize(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render: serializar: %w", err)
	}
	return buf.Bytes(), nil
}
