// Package invoicing ensambla los valores del CFDI 4.0 a partir de documentos
// contables y orquesta el ciclo firmar → timbrar (PAC) → persistir → consultar
// SAT, incluyendo cancelación, sustitución y factura global.
package invoicing

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// TaxEntry entrada agregada de impuestos, por concepto o por documento.
// Importe nil = Exento (el atributo se suprime al renderizar).
type TaxEntry struct {
	Base       decimal.Decimal
	Importe    *decimal.Decimal
	Impuesto   string // c_Impuesto 001|002|003
	TipoFactor string
	TasaOCuota *decimal.Decimal // nil para Exento
	Tasade     *decimal.Decimal // solo impuestos locales (tasa × 100)
	Nombre     string           // nombre del grupo (impuestos locales)
}

// Concepto línea del CFDI ya lista para el render.
type Concepto struct {
	ClaveProdServ    string
	NoIdentificacion string
	Cantidad         decimal.Decimal
	ClaveUnidad      string
	Unidad           string
	Descripcion      string
	ValorUnitario    decimal.Decimal
	Importe          decimal.Decimal
	Descuento        *decimal.Decimal
	ObjetoImp        string
	Traslados        []TaxEntry
	Retenciones      []TaxEntry

	// metadatos para la consolidación de la factura global
	SourceDocName string
	TaxSignature  string
}

// EmisorValues bloque Emisor.
type EmisorValues struct {
	Rfc           string
	Nombre        string
	RegimenFiscal string
}

// ReceptorValues bloque Receptor.
type ReceptorValues struct {
	Rfc              string
	Nombre           string
	DomicilioFiscal  string
	RegimenFiscal    string
	UsoCfdi          string
	ResidenciaFiscal string // vacío para MX
}

// CertificateValues certificado elegido para el sellado.
type CertificateValues struct {
	NoCertificado string // serie en dígitos pares
	Certificado   string // DER en base64
}

// GlobalInfoValues nodo InformacionGlobal (solo factura global).
type GlobalInfoValues struct {
	Periodicidad string
	Meses        string
	Ano          string
}

// Values es el registro tipado cfdi_values: todo lo que el render necesita
// para producir el comprobante. Errors no vacío aborta el pipeline.
type Values struct {
	Errors []string

	Company     *entity.Company
	RootCompany *entity.Company
	Certificate CertificateValues

	Emisor   EmisorValues
	Receptor ReceptorValues

	Moneda    string
	Precision int32           // decimales CFDI de la moneda
	TipoCambio *decimal.Decimal // solo global no-MXN

	Serie string
	Folio string
	Fecha string // YYYY-MM-DDTHH:MM:SS, sin sufijo de zona

	TipoDeComprobante string
	LugarExpedicion   string
	Exportacion       string
	MetodoPago        string
	FormaPago         string
	ObjetoImp         string

	TipoRelacion     string
	CfdiRelacionados []string

	Conceptos []Concepto

	Traslados        []TaxEntry
	Retenciones      []TaxEntry
	LocalTraslados   []TaxEntry
	LocalRetenciones []TaxEntry

	Subtotal  decimal.Decimal
	Descuento *decimal.Decimal
	Total     decimal.Decimal

	TotalImpuestosTrasladados *decimal.Decimal
	TotalImpuestosRetenidos   *decimal.Decimal
	TotalLocalTrasladados     *decimal.Decimal
	TotalLocalRetenidos       *decimal.Decimal

	InformacionGlobal *GlobalInfoValues
}

// AddError registra un error de ensamblado; Errors no vacío detiene el flujo
// antes de tocar la red.
func (v *Values) AddError(msg string) {
	v.Errors = append(v.Errors, msg)
}

// HasErrors indica si el ensamblado falló.
func (v *Values) HasErrors() bool { return len(v.Errors) > 0 }

// Round redondea a la precisión CFDI de la moneda normalizando el cero
// negativo a cero positivo (el SAT rechaza "-0.00").
func (v *Values) Round(d decimal.Decimal) decimal.Decimal {
	r := d.Round(v.Precision)
	if r.IsZero() {
		return decimal.Zero.Round(v.Precision)
	}
	return r
}

// Format formatea un monto con la precisión CFDI de la moneda.
func (v *Values) Format(d decimal.Decimal) string {
	return v.Round(d).StringFixed(v.Precision)
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
