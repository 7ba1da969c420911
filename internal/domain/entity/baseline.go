package entity

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// TaxDetail desglose de un impuesto sobre una línea, calculado por el motor de
// impuestos del framework contable (contrato compute_tax_details).
type TaxDetail struct {
	TaxID             string
	TaxCode           string // c_Impuesto: 001 ISR, 002 IVA, 003 IEPS
	FactorType        string // Tasa | Cuota | Exento (l10n_mx_factor_type)
	TaxType           string // "local" para impuestos locales; vacío = federal
	GroupName         string // nombre del grupo de impuestos (local)
	Rate              decimal.Decimal // porcentaje con signo; negativo = retención
	BaseAmount        decimal.Decimal // base en moneda del documento
	TaxAmount         decimal.Decimal // importe en moneda del documento
	RawBaseAmount     decimal.Decimal // base sin redondeo por línea
	RawTaxAmount      decimal.Decimal // importe sin redondeo por línea
}

// IsWithholding indica si el detalle es una retención (tasa negativa).
func (t TaxDetail) IsWithholding() bool { return t.Rate.IsNegative() }

// IsLocal indica si el impuesto es local (queda fuera del desglose federal).
func (t TaxDetail) IsLocal() bool { return t.TaxType == "local" }

// BaseLine línea de entrada del ensamblador. Es la unidad que entrega el
// framework contable; el motor no recalcula impuestos, solo los agrega.
type BaseLine struct {
	RecordID       string   // id de la línea en el registro origen
	DocumentID     string   // id del documento origen (para el reparto de negativas)
	DocumentName   string   // nombre humano ("INV/2024/0042")
	PriorRecordIDs []string // líneas causalmente anteriores (pistas de reparto)

	ProductCode  string // clave producto/servicio UNSPSC (c_ClaveProdServ)
	ProductName  string
	UnitCode     string // c_ClaveUnidad
	UnitName     string
	Quantity     decimal.Decimal
	PriceUnit    decimal.Decimal
	Discount     decimal.Decimal // porcentaje 0..100
	PriceSubtotal decimal.Decimal

	TaxDetails []TaxDetail
	ObjetoImp  string // 01 | 02 | 03, derivado por el caller

	CurrencyCode string
	Rate         decimal.Decimal // tasa de cambio del documento origen (0 = sin tasa)
}

// GrossSubtotal importe bruto de la línea antes de descuento
// (cantidad × precio unitario).
func (l BaseLine) GrossSubtotal() decimal.Decimal {
	return l.Quantity.Mul(l.PriceUnit)
}

// DiscountAmount importe del descuento derivado del porcentaje.
func (l BaseLine) DiscountAmount() decimal.Decimal {
	return l.GrossSubtotal().Mul(l.Discount).Div(decimal.NewFromInt(100))
}

// HasTaxes indica si la línea trae algún impuesto no local.
func (l BaseLine) HasTaxes() bool {
	for _, td := range l.TaxDetails {
		if !td.IsLocal() {
			return true
		}
	}
	return false
}

// TaxSignature clave estable del conjunto de impuestos de la línea, usada para
// decidir qué línea positiva puede absorber una negativa y para consolidar
// conceptos en la factura global. Las claves se ordenan antes de unirse: el
// mismo conjunto de impuestos produce la misma firma sin importar el orden en
// que el framework contable entregó los detalles.
func (l BaseLine) TaxSignature() string {
	keys := make([]string, 0, len(l.TaxDetails))
	for _, td := range l.TaxDetails {
		keys = append(keys, td.FactorType+"/"+td.TaxType+"/"+td.Rate.StringFixed(6))
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}
