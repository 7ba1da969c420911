// Package sat contiene catálogos y validaciones alineados al Anexo 20 de
// CFDI 4.0 (SAT, México) y a los catálogos c_* publicados por el SAT.
package sat

// =============================================================================
// RFCs genéricos (regla 2.7.1.26 RMF) — receptor sin RFC propio.
// =============================================================================

const (
	// RFCPublicoGeneral es el RFC genérico nacional ("PUBLICO EN GENERAL").
	RFCPublicoGeneral = "XAXX010101000"
	// RFCExtranjero es el RFC genérico para residentes en el extranjero.
	RFCExtranjero = "XEXX010101000"

	// NombrePublicoGeneral es la razón social obligada para el RFC genérico.
	NombrePublicoGeneral = "PUBLICO EN GENERAL"

	// RegimenSinObligaciones es el régimen fiscal 616 (sin obligaciones fiscales),
	// el único válido para los RFCs genéricos.
	RegimenSinObligaciones = "616"
)

// =============================================================================
// c_TipoDeComprobante
// =============================================================================

const (
	ComprobanteIngreso = "I"
	ComprobanteEgreso  = "E"
	ComprobantePago    = "P"
)

// =============================================================================
// c_MetodoPago y c_FormaPago (códigos de uso frecuente)
// =============================================================================

const (
	MetodoPagoPUE = "PUE" // Pago en una sola exhibición
	MetodoPagoPPD = "PPD" // Pago en parcialidades o diferido

	FormaPagoEfectivo      = "01"
	FormaPagoChequeNom     = "02"
	FormaPagoTransferencia = "03"
	FormaPagoTarjetaCred   = "04"
	FormaPagoTarjetaDeb    = "28"
	FormaPagoPorDefinir    = "99"
)

// =============================================================================
// c_Impuesto
// =============================================================================

const (
	ImpuestoISR  = "001"
	ImpuestoIVA  = "002"
	ImpuestoIEPS = "003"
)

// =============================================================================
// c_TipoFactor
// =============================================================================

const (
	FactorTasa   = "Tasa"
	FactorCuota  = "Cuota"
	FactorExento = "Exento"
)

// =============================================================================
// c_ObjetoImp
// =============================================================================

const (
	ObjetoImpNo         = "01" // No objeto de impuesto
	ObjetoImpSi         = "02" // Sí objeto de impuesto
	ObjetoImpSinDesglose = "03" // Sí objeto y no obligado al desglose
)

// =============================================================================
// c_UsoCFDI (códigos de uso frecuente)
// =============================================================================

const (
	UsoGastosGeneral  = "G03"
	UsoDevoluciones   = "G02"
	UsoSinEfectos     = "S01"
	UsoPorDefinir     = "P01" // retirado en CFDI 4.0; se traduce a S01
)

// =============================================================================
// Motivos de cancelación (c_MotivoCancelacion)
// =============================================================================

const (
	CancelConErroresConSustituto = "01" // Comprobante emitido con errores con relación
	CancelConErroresSinSustituto = "02" // Comprobante emitido con errores sin relación
	CancelOperacionNoRealizada   = "03" // No se llevó a cabo la operación
	CancelGlobalNominativa       = "04" // Operación nominativa relacionada en la global
)

// ValidCancellationReasons motivos de cancelación válidos según el SAT.
var ValidCancellationReasons = map[string]bool{
	CancelConErroresConSustituto: true,
	CancelConErroresSinSustituto: true,
	CancelOperacionNoRealizada:   true,
	CancelGlobalNominativa:       true,
}

// =============================================================================
// c_TipoRelacion — relación entre CFDI (sustitución, devolución, etc.)
// =============================================================================

const (
	RelacionNotaCredito     = "01"
	RelacionNotaDebito      = "02"
	RelacionDevolucion      = "03"
	RelacionSustitucion     = "04"
	RelacionTrasladoPrevio  = "05"
	RelacionFacturaTraslado = "06"
	RelacionAnticipo        = "07"
)

// ValidRelationCode indica si el código de relación CFDI está dentro de 01..07.
func ValidRelationCode(code string) bool {
	switch code {
	case RelacionNotaCredito, RelacionNotaDebito, RelacionDevolucion,
		RelacionSustitucion, RelacionTrasladoPrevio, RelacionFacturaTraslado,
		RelacionAnticipo:
		return true
	}
	return false
}

// =============================================================================
// c_Periodicidad — factura global (InformacionGlobal)
// =============================================================================

const (
	PeriodicidadDiaria     = "01"
	PeriodicidadSemanal    = "02"
	PeriodicidadQuincenal  = "03"
	PeriodicidadMensual    = "04"
	PeriodicidadBimestral  = "05"
)

// ValidPeriodicities periodicidades válidas para la factura global.
var ValidPeriodicities = map[string]bool{
	PeriodicidadDiaria: true, PeriodicidadSemanal: true,
	PeriodicidadQuincenal: true, PeriodicidadMensual: true,
	PeriodicidadBimestral: true,
}

// =============================================================================
// Factura global — claves fijas del concepto consolidado (regla 2.7.1.24 RMF)
// =============================================================================

const (
	GlobalClaveProdServ = "01010101"
	GlobalClaveUnidad   = "ACT"
	GlobalDescripcion   = "Venta"
)

// =============================================================================
// Estados del servicio de consulta del SAT (ConsultaCFDI)
// =============================================================================

const (
	EstadoVigente      = "Vigente"
	EstadoCancelado    = "Cancelado"
	EstadoNoEncontrado = "No Encontrado"
)
