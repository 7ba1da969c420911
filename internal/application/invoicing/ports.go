package invoicing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// ── Documento de negocio de entrada ───────────────────────────────────────────

// SourceDocument entrada del ensamblador: lo que el framework contable entrega
// (factura, pago o global) ya con las líneas base e impuestos calculados.
type SourceDocument struct {
	Model string // "invoice" | "payment" | "ginvoice"
	ID    string
	Name  string // nombre humano, ej. "INV/2024/00042"

	Date         time.Time // fecha del documento (solo día)
	CompanyID    string
	Partner      *entity.Partner // nil = sin receptor identificado

	CurrencyCode      string
	CurrencyPrecision int32

	PaymentPolicy     string // "PUE" | "PPD"
	PaymentMethodCode string // c_FormaPago del método elegido; vacío = NA
	UsoCfdi           string

	ToPublic       bool // venta al público en general
	RefundOfGlobal bool // nota de crédito que excluye una venta de una global previa

	Origin string // attachment_origin crudo: "<código>|uuid,uuid"

	TimezoneOverride string // zona del diario, si difiere de la empresa

	Lines []entity.BaseLine

	// Solo factura global:
	Periodicity string   // 01..05
	InvoiceIDs  []string // facturas agrupadas
	FolioNumber int64    // folio reservado de la secuencia; 0 = aún sin reservar
	// Tasas 1/rate por documento origen con tasa (para el tipo de cambio medio).
	SourceRates map[string]decimal.Decimal
}

// ── PAC ───────────────────────────────────────────────────────────────────────

// PacCredentials credenciales resueltas para una operación PAC.
type PacCredentials struct {
	Username string
	Password string
	Token    string // solo SW: token directo en lugar de usuario/contraseña
	TestEnv  bool
}

// SignResult resultado del timbrado: CFDI con TFD o lista de errores.
type SignResult struct {
	Cfdi   []byte
	Errors []string
}

// CancelRequest solicitud de cancelación ante el PAC.
type CancelRequest struct {
	UUID           string
	Reason         string // c_MotivoCancelacion 01..04
	SubstituteUUID string // obligatorio solo con motivo 01
	RFC            string
	CerPEM         []byte
	KeyPEM         []byte
	KeyPassword    string
}

// CancelResult resultado de la cancelación; Errors vacío = aceptada.
// NeedsAcceptance indica que la solicitud quedó en espera de la aceptación del
// receptor (solo facturas nominativas).
type CancelResult struct {
	Errors          []string
	NeedsAcceptance bool
}

// PacProvider contrato único sobre los adapters Finkok, Solución Factible y SW.
// Sign y Cancel son operaciones puras sobre HTTP/SOAP con timeout de 20 s.
type PacProvider interface {
	Name() string
	Credentials(company *entity.Company) (PacCredentials, error)
	Sign(ctx context.Context, creds PacCredentials, cfdiXML []byte) SignResult
	Cancel(ctx context.Context, creds PacCredentials, req CancelRequest) CancelResult
}

// ── Certificados ──────────────────────────────────────────────────────────────

// SigningCertificate certificado CSD activo con su capacidad de firma. La
// llave se carga por operación; nunca se cachea entre llamadas.
type SigningCertificate interface {
	SerialNumber() string // número de serie en dígitos pares (NoCertificado)
	DERBase64() string
	CerPEM() []byte
	KeyPEM() []byte
	Password() string
	// Sign firma la cadena original: PKCS#1 v1.5 SHA-256, en base64.
	Sign(cadena string) (string, error)
}

// CertificateGateway resuelve el certificado activo de la empresa o de su
// raíz con RFC.
type CertificateGateway interface {
	PickActive(ctx context.Context, company *entity.Company) (SigningCertificate, error)
}

// ── Render y decodificación ───────────────────────────────────────────────────

// Renderer produce el XML CFDI sellado a partir de los valores ensamblados.
type Renderer interface {
	Render(ctx context.Context, values *Values, cert SigningCertificate) ([]byte, error)
}

// DecodedCfdi registro normalizado de un CFDI timbrado.
type DecodedCfdi struct {
	UUID              string
	EmisorRFC         string
	ReceptorRFC       string
	RegimenFiscal     string
	Serie             string
	Folio             string
	Subtotal          decimal.Decimal
	Total             decimal.Decimal
	Moneda            string
	FechaTimbrado     string
	CadenaTFD         string
	SelloCFDI         string
	Origin            *cfdi.Origin
	NumConceptos      int
	ObjetoImpReceptor string
}

// Decoder parsea un CFDI firmado al registro normalizado.
type Decoder interface {
	Decode(cfdiXML []byte) (*DecodedCfdi, error)
}

// ── Persistencia auxiliar ─────────────────────────────────────────────────────

// Checkpointer confirma estado intermedio entre llamadas de red (tras éxito
// PAC, tras fallo PAC y tras la consulta SAT) para que una caída no pierda un
// timbrado. Bajo pruebas es un no-op.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// ── SAT ───────────────────────────────────────────────────────────────────────

// SatStatusClient consulta el estado de un CFDI en el servicio público del SAT.
type SatStatusClient interface {
	// Status devuelve el sat_state {valid|cancelled|not_found|not_defined|error}
	// y el mensaje original cuando aplica.
	Status(ctx context.Context, uuid, emisorRFC, receptorRFC string, total decimal.Decimal) (string, string)
}

// ── Motor de impuestos ───────────────────────────────────────────────────────

// TaxCalculator contrato compute_tax_details: el framework contable calcula el
// desglose por línea; el motor solo agrega. Devuelve también los criterios de
// ordenación para el reparto de negativas.
type TaxCalculator interface {
	ComputeTaxDetails(ctx context.Context, lines []entity.BaseLine, company *entity.Company) ([]entity.BaseLine, error)
	DispatchCriteria() []cfdi.MatchCriterion
}
