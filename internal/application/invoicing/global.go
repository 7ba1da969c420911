package invoicing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/pkg/sat"
)

// addGlobalValues completa el comprobante global: nodo InformacionGlobal,
// tipo de cambio promedio para monedas extranjeras y consolidación de
// conceptos por (documento origen, firma de impuestos).
func (a *Assembler) addGlobalValues(v *Values, doc *SourceDocument) {
	if !sat.ValidPeriodicities[doc.Periodicity] {
		v.AddError(fmt.Sprintf("periodicidad %q inválida para la factura global", doc.Periodicity))
		return
	}
	if len(doc.InvoiceIDs) == 0 {
		v.AddError("la factura global no agrupa ninguna factura")
		return
	}

	// La global siempre es ingreso en una sola exhibición.
	v.MetodoPago = sat.MetodoPagoPUE
	if v.FormaPago == "" {
		v.FormaPago = sat.FormaPagoPorDefinir
	}

	v.InformacionGlobal = &GlobalInfoValues{
		Periodicidad: doc.Periodicity,
		Meses:        globalMeses(doc.Periodicity, doc.Date),
		Ano:          strconv.Itoa(doc.Date.Year()),
	}

	if v.Moneda != "" && v.Moneda != "MXN" {
		v.TipoCambio = meanInverseRate(doc.SourceRates)
		if v.TipoCambio == nil {
			v.AddError("factura global en moneda extranjera sin tasas de cambio de origen")
		}
	}

	consolidateGlobalConceptos(v)
}

// globalMeses calcula el atributo Meses: el mes del periodo para 01..04 y el
// código bimestral 13..18 para 05.
func globalMeses(periodicity string, date time.Time) string {
	month := int(date.Month())
	if periodicity == sat.PeriodicidadBimestral {
		month = 12 + (month+(month%2))/2
	}
	return fmt.Sprintf("%02d", month)
}

// meanInverseRate promedia 1/tasa de los documentos agrupados; nil si ninguno
// trae tasa.
func meanInverseRate(rates map[string]decimal.Decimal) *decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, r := range rates {
		if r.IsZero() {
			continue
		}
		sum = sum.Add(decimal.NewFromInt(1).Div(r))
		n++
	}
	if n == 0 {
		return nil
	}
	return ptr(sum.Div(decimal.NewFromInt(int64(n))))
}

// consolidateGlobalConceptos colapsa los conceptos por documento origen y
// firma de impuestos en un concepto por ticket con las claves fijas de la
// regla 2.7.1.24: 01010101 / ACT / cantidad 1 / "Venta", con el folio del
// ticket como NoIdentificacion.
func consolidateGlobalConceptos(v *Values) {
	type gkey struct{ doc, sig string }
	idx := map[gkey]int{}
	var out []Concepto

	for _, c := range v.Conceptos {
		k := gkey{c.SourceDocName, c.TaxSignature}
		net := c.Importe
		if c.Descuento != nil {
			net = net.Sub(*c.Descuento)
		}
		i, ok := idx[k]
		if !ok {
			out = append(out, Concepto{
				ClaveProdServ:    sat.GlobalClaveProdServ,
				NoIdentificacion: c.SourceDocName,
				Cantidad:         decimal.NewFromInt(1),
				ClaveUnidad:      sat.GlobalClaveUnidad,
				Descripcion:      sat.GlobalDescripcion,
				ObjetoImp:        c.ObjetoImp,
				SourceDocName:    c.SourceDocName,
				TaxSignature:     c.TaxSignature,
			})
			i = len(out) - 1
			idx[k] = i
		}
		out[i].ValorUnitario = out[i].ValorUnitario.Add(net)
		out[i].Importe = out[i].Importe.Add(net)
		out[i].Traslados = mergeTaxEntries(out[i].Traslados, c.Traslados)
		out[i].Retenciones = mergeTaxEntries(out[i].Retenciones, c.Retenciones)
	}

	for i := range out {
		out[i].ValorUnitario = v.Round(out[i].ValorUnitario)
		out[i].Importe = v.Round(out[i].Importe)
	}
	v.Conceptos = out

	// El descuento ya quedó neteado dentro de cada concepto consolidado.
	subtotal := decimal.Zero
	for _, c := range v.Conceptos {
		subtotal = subtotal.Add(c.Importe)
	}
	v.Subtotal = v.Round(subtotal)
	v.Descuento = nil
	total := subtotal
	for _, t := range []*decimal.Decimal{v.TotalImpuestosTrasladados, v.TotalLocalTrasladados} {
		if t != nil {
			total = total.Add(*t)
		}
	}
	for _, t := range []*decimal.Decimal{v.TotalImpuestosRetenidos, v.TotalLocalRetenidos} {
		if t != nil {
			total = total.Sub(*t)
		}
	}
	v.Total = v.Round(total)
}

// mergeTaxEntries acumula entradas de impuestos por (impuesto, factor, tasa)
// preservando el orden de primera aparición.
func mergeTaxEntries(dst, src []TaxEntry) []TaxEntry {
	for _, e := range src {
		tasa := ""
		if e.TasaOCuota != nil {
			tasa = e.TasaOCuota.StringFixed(6)
		}
		found := false
		for i := range dst {
			dtasa := ""
			if dst[i].TasaOCuota != nil {
				dtasa = dst[i].TasaOCuota.StringFixed(6)
			}
			if dst[i].Impuesto == e.Impuesto && dst[i].TipoFactor == e.TipoFactor && dtasa == tasa {
				dst[i].Base = dst[i].Base.Add(e.Base)
				if e.Importe != nil {
					if dst[i].Importe == nil {
						dst[i].Importe = ptr(decimal.Zero)
					}
					*dst[i].Importe = dst[i].Importe.Add(*e.Importe)
				}
				found = true
				break
			}
		}
		if !found {
			cp := e
			if e.Importe != nil {
				cp.Importe = ptr(*e.Importe)
			}
			dst = append(dst, cp)
		}
	}
	return dst
}
