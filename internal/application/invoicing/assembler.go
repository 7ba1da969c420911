package invoicing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
	"github.com/jhoicas/cfdi-api/pkg/sat"
)

// Assembler construye el registro Values a partir de un SourceDocument.
// Cada operación add* muta Values y acumula en Errors; el pipeline se corta
// antes de cualquier llamada de red si Errors no queda vacío.
type Assembler struct {
	companies repository.CompanyRepository
	certs     CertificateGateway
	taxes     TaxCalculator
	now       func() time.Time
}

// NewAssembler construye el ensamblador con sus colaboradores.
func NewAssembler(companies repository.CompanyRepository, certs CertificateGateway, taxes TaxCalculator) *Assembler {
	return &Assembler{companies: companies, certs: certs, taxes: taxes, now: time.Now}
}

// Assemble ejecuta la cadena completa de sub-builders. El orden importa solo
// entre moneda y líneas; el resto es conmutativo.
func (a *Assembler) Assemble(ctx context.Context, doc *SourceDocument) *Values {
	v := &Values{}
	a.addBaseValues(v, doc)
	a.addCompanyValues(ctx, v, doc)
	a.addCertificateValues(ctx, v)
	a.addCurrencyValues(v, doc)
	a.addDocumentNameValues(v, doc)
	a.addOriginValues(v, doc)
	a.addDateValues(v, doc)
	a.addPaymentPolicyValues(v, doc)
	a.addCustomerValues(v, doc)
	a.addTaxObjectiveValues(v, doc)
	a.addBaseLineValues(ctx, v, doc)
	if doc.Model == "ginvoice" {
		a.addGlobalValues(v, doc)
	}
	return v
}

// addBaseValues siembra los valores fijos del comprobante.
func (a *Assembler) addBaseValues(v *Values, doc *SourceDocument) {
	v.Exportacion = "01"
	switch doc.Model {
	case "payment":
		v.TipoDeComprobante = sat.ComprobantePago
	default:
		v.TipoDeComprobante = sat.ComprobanteIngreso
	}
}

// addCompanyValues resuelve empresa, raíz y el bloque Emisor con la razón
// social limpia de régimen societario.
func (a *Assembler) addCompanyValues(ctx context.Context, v *Values, doc *SourceDocument) {
	company, err := a.companies.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		v.AddError(fmt.Sprintf("empresa %s no encontrada", doc.CompanyID))
		return
	}
	root, err := a.companies.Root(ctx, doc.CompanyID)
	if err != nil || root == nil || root.RFC == "" {
		v.AddError("no hay empresa raíz con RFC para el emisor")
		return
	}
	v.Company = company
	v.RootCompany = root
	v.Emisor = EmisorValues{
		Rfc:           sat.NormalizeRFC(root.RFC),
		Nombre:        cfdi.SanitizeLegalName(root.Name),
		RegimenFiscal: root.FiscalRegime,
	}
	zip := company.Zip
	if zip == "" {
		zip = root.Zip
	}
	v.LugarExpedicion = zip
}

func (a *Assembler) addCertificateValues(ctx context.Context, v *Values) {
	if v.RootCompany == nil {
		return
	}
	cert, err := a.certs.PickActive(ctx, v.RootCompany)
	if err != nil {
		v.AddError(err.Error())
		return
	}
	v.Certificate = CertificateValues{
		NoCertificado: cert.SerialNumber(),
		Certificado:   cert.DERBase64(),
	}
}

// addCurrencyValues fija la moneda y su precisión CFDI (el redondeo con
// normalización de -0.0 vive en Values.Round).
func (a *Assembler) addCurrencyValues(v *Values, doc *SourceDocument) {
	if doc.CurrencyCode == "" {
		v.AddError("documento sin moneda")
		return
	}
	v.Moneda = doc.CurrencyCode
	v.Precision = doc.CurrencyPrecision
	if v.Precision == 0 && doc.CurrencyCode != "JPY" {
		v.Precision = 2
	}
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// addDocumentNameValues descompone el nombre humano en serie (prefijo no
// numérico) y folio (sufijo numérico sin ceros a la izquierda).
func (a *Assembler) addDocumentNameValues(v *Values, doc *SourceDocument) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return
	}
	m := trailingDigits.FindString(name)
	if m == "" {
		v.Serie = name
		return
	}
	v.Serie = strings.TrimSpace(name[:len(name)-len(m)])
	v.Folio = strings.TrimLeft(m, "0")
	if v.Folio == "" {
		v.Folio = "0"
	}
}

// addOriginValues interpreta attachment_origin; un código fuera de 01..07 se
// ignora sin error (no hay relación que declarar).
func (a *Assembler) addOriginValues(v *Values, doc *SourceDocument) {
	origin, err := cfdi.ParseOrigin(doc.Origin)
	if err != nil {
		v.AddError(err.Error())
		return
	}
	if origin == nil {
		return
	}
	v.TipoRelacion = origin.RelationCode
	v.CfdiRelacionados = origin.UUIDs
}

// addDateValues estampa Fecha con la zona CFDI de la empresa (o la del diario
// si la sobreescribe): fechas pasadas cierran a las 23:59:00 de ese día; hoy
// usa la hora de pared actual. Nunca se usa la zona ambiente del proceso.
func (a *Assembler) addDateValues(v *Values, doc *SourceDocument) {
	tzName := doc.TimezoneOverride
	if tzName == "" && v.Company != nil {
		tzName = v.Company.Timezone
	}
	if tzName == "" {
		tzName = "America/Mexico_City"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		v.AddError(fmt.Sprintf("zona horaria CFDI inválida: %q", tzName))
		return
	}
	now := a.now().In(loc)
	docDate := doc.Date
	if !docDate.IsZero() && docDate.Format("2006-01-02") < now.Format("2006-01-02") {
		v.Fecha = docDate.Format("2006-01-02") + "T23:59:00"
		return
	}
	v.Fecha = now.Format("2006-01-02T15:04:05")
}

// addPaymentPolicyValues PPD fuerza forma de pago 99; PUE usa el código del
// método elegido o 99 si no aplica.
func (a *Assembler) addPaymentPolicyValues(v *Values, doc *SourceDocument) {
	if v.TipoDeComprobante == sat.ComprobantePago {
		return
	}
	if doc.PaymentPolicy == sat.MetodoPagoPPD {
		v.MetodoPago = sat.MetodoPagoPPD
		v.FormaPago = sat.FormaPagoPorDefinir
		return
	}
	v.MetodoPago = sat.MetodoPagoPUE
	if doc.PaymentMethodCode != "" {
		v.FormaPago = doc.PaymentMethodCode
	} else {
		v.FormaPago = sat.FormaPagoPorDefinir
	}
}

// addCustomerValues resuelve el Receptor en una de tres formas: público en
// general, genérico (nacional o extranjero) o cliente nominado.
func (a *Assembler) addCustomerValues(v *Values, doc *SourceDocument) {
	partner := doc.Partner

	// Público en general: global, su devolución, o venta anónima al público.
	if doc.RefundOfGlobal || (doc.ToPublic && (partner == nil || partner.VAT == "")) || doc.Model == "ginvoice" {
		uso := sat.UsoSinEfectos
		if doc.RefundOfGlobal {
			uso = sat.UsoDevoluciones
		}
		v.Receptor = ReceptorValues{
			Rfc:             sat.RFCPublicoGeneral,
			Nombre:          sat.NombrePublicoGeneral,
			DomicilioFiscal: v.LugarExpedicion,
			RegimenFiscal:   sat.RegimenSinObligaciones,
			UsoCfdi:         uso,
		}
		return
	}

	// Receptor sin datos suficientes: genérico nacional o extranjero.
	if partner == nil || partner.VAT == "" || partner.IsForeign() || doc.ToPublic {
		rfc := sat.RFCPublicoGeneral
		residencia := ""
		if partner != nil && partner.IsForeign() {
			rfc = sat.RFCExtranjero
			residencia = partner.SatCountryCode
		}
		nombre := sat.NombrePublicoGeneral
		if partner != nil && partner.Name != "" {
			nombre = cfdi.SanitizeLegalName(partner.Name)
		}
		v.Receptor = ReceptorValues{
			Rfc:              rfc,
			Nombre:           nombre,
			DomicilioFiscal:  v.LugarExpedicion,
			RegimenFiscal:    sat.RegimenSinObligaciones,
			UsoCfdi:          sat.UsoSinEfectos,
			ResidenciaFiscal: residencia,
		}
		return
	}

	// Cliente nominado: RFC real, nombre limpio y régimen propio.
	regime := partner.FiscalRegime
	if regime == "" {
		regime = sat.RegimenSinObligaciones
	}
	uso := doc.UsoCfdi
	if uso == "" || uso == sat.UsoPorDefinir {
		uso = sat.UsoSinEfectos
	}
	v.Receptor = ReceptorValues{
		Rfc:             sat.NormalizeRFC(partner.VAT),
		Nombre:          cfdi.SanitizeLegalName(partner.Name),
		DomicilioFiscal: partner.Zip,
		RegimenFiscal:   regime,
		UsoCfdi:         uso,
	}
}

// addTaxObjectiveValues 03 si el receptor optó por no desglosar; 01 si ninguna
// línea trae impuestos; 02 en el resto.
func (a *Assembler) addTaxObjectiveValues(v *Values, doc *SourceDocument) {
	if doc.Partner != nil && doc.Partner.NoTaxBreakdown {
		v.ObjetoImp = sat.ObjetoImpSinDesglose
		return
	}
	for _, l := range doc.Lines {
		if len(l.TaxDetails) > 0 {
			v.ObjetoImp = sat.ObjetoImpSi
			return
		}
	}
	v.ObjetoImp = sat.ObjetoImpNo
}

// addBaseLineValues ejecuta el reparto de negativas y las dos agregaciones de
// impuestos (por concepto y por documento). Ver taxes.go.
func (a *Assembler) addBaseLineValues(ctx context.Context, v *Values, doc *SourceDocument) {
	if len(doc.Lines) == 0 {
		if v.TipoDeComprobante != sat.ComprobantePago {
			v.AddError("documento sin líneas")
		}
		return
	}
	var criteria []cfdi.MatchCriterion
	if a.taxes != nil {
		criteria = a.taxes.DispatchCriteria()
	}
	res := cfdi.DispatchNegativeLines(doc.Lines, criteria)
	if len(res.Orphans) > 0 {
		v.AddError(fmt.Sprintf("quedaron %d líneas negativas sin repartir; el comprobante no puede emitirse", len(res.Orphans)))
		return
	}
	buildConceptos(v, res.Lines)
	aggregateDocumentTaxes(v, res.Lines)
	composeTotals(v)
}
