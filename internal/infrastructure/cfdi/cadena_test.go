package cfdi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cfdiTimbrado = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital" Version="4.0" Serie="A" Folio="42" Fecha="2024-03-15T23:59:00" Sello="SELLO" NoCertificado="30001000000400002434" Certificado="CERT" SubTotal="100.00" Moneda="MXN" Total="116.00" TipoDeComprobante="I" Exportacion="01" MetodoPago="PUE" LugarExpedicion="20000">
  <cfdi:Emisor Rfc="EKU9003173C9" Nombre="EMPRESA PRUEBAS" RegimenFiscal="601"/>
  <cfdi:Receptor Rfc="XAXX010101000" Nombre="PUBLICO EN GENERAL" DomicilioFiscalReceptor="20000" RegimenFiscalReceptor="616" UsoCFDI="S01"/>
  <cfdi:Conceptos>
    <cfdi:Concepto ClaveProdServ="01010101" Cantidad="1" ClaveUnidad="H87" Descripcion="Venta" ValorUnitario="100.00" Importe="100.00" ObjetoImp="02"/>
  </cfdi:Conceptos>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital Version="1.1" UUID="AAAA1111-2222-3333-4444-555566667777" FechaTimbrado="2024-03-16T10:00:00" RfcProvCertif="FIN1203015JA" SelloCFD="SELLO" NoCertificadoSAT="30001000000400002495" SelloSAT="SELLOSAT"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

// La cadena del comprobante arranca con la versión y excluye Sello,
// Certificado y el contenido del TFD.
func TestBuildCadena_Comprobante(t *testing.T) {
	cadena, err := BuildCadena([]byte(cfdiTimbrado), SelectorComprobante)
	require.NoError(t, err)

	assert.True(t, len(cadena) > 4)
	assert.Equal(t, "||4.0|A|42|", cadena[:11])
	assert.NotContains(t, cadena, "SELLOSAT")
	assert.NotContains(t, cadena, "CERT|")
	assert.NotContains(t, cadena, "AAAA1111", "el TFD no entra a la cadena del comprobante")
	assert.Contains(t, cadena, "|EKU9003173C9|")
	assert.Contains(t, cadena, "|01010101|")
}

// El nodo Impuestos del comprobante intercala listas y totales como la hoja
// XSLT: Retenciones, TotalImpuestosRetenidos, Traslados,
// TotalImpuestosTrasladados.
func TestBuildCadena_ImpuestosIntercalados(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Fecha="2024-03-15T23:59:00" NoCertificado="30001000000400002434" SubTotal="100.00" Moneda="MXN" Total="106.00" TipoDeComprobante="I" Exportacion="01" MetodoPago="PUE" LugarExpedicion="20000" Sello="S" Certificado="C">
  <cfdi:Emisor Rfc="EKU9003173C9" Nombre="EMPRESA PRUEBAS" RegimenFiscal="601"/>
  <cfdi:Receptor Rfc="XAXX010101000" Nombre="PUBLICO EN GENERAL" DomicilioFiscalReceptor="20000" RegimenFiscalReceptor="616" UsoCFDI="S01"/>
  <cfdi:Conceptos>
    <cfdi:Concepto ClaveProdServ="01010101" Cantidad="1" ClaveUnidad="H87" Descripcion="Venta" ValorUnitario="100.00" Importe="100.00" ObjetoImp="02"/>
  </cfdi:Conceptos>
  <cfdi:Impuestos TotalImpuestosRetenidos="10.00" TotalImpuestosTrasladados="16.00">
    <cfdi:Retenciones>
      <cfdi:Retencion Impuesto="001" Importe="10.00"/>
    </cfdi:Retenciones>
    <cfdi:Traslados>
      <cfdi:Traslado Base="100.00" Impuesto="002" TipoFactor="Tasa" TasaOCuota="0.160000" Importe="16.00"/>
    </cfdi:Traslados>
  </cfdi:Impuestos>
</cfdi:Comprobante>`

	cadena, err := BuildCadena([]byte(xml), SelectorComprobante)
	require.NoError(t, err)
	assert.Contains(t, cadena,
		"|001|10.00|10.00|100.00|002|Tasa|0.160000|16.00|16.00|",
		"retenciones, total retenido, traslados, total trasladado, en ese orden")
}

// La cadena del TFD toma solo el nodo TimbreFiscalDigital, sin SelloSAT.
func TestBuildCadena_TFD(t *testing.T) {
	cadena, err := BuildCadena([]byte(cfdiTimbrado), SelectorTFD)
	require.NoError(t, err)
	assert.Equal(t, "||1.1|AAAA1111-2222-3333-4444-555566667777|2024-03-16T10:00:00|FIN1203015JA|SELLO|30001000000400002495||", cadena)
}

// Sin TFD en el árbol: cadena vacía sin error.
func TestBuildCadena_SinTFD(t *testing.T) {
	xml := `<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Fecha="2024-03-15T23:59:00" SubTotal="1" Moneda="MXN" Total="1" TipoDeComprobante="I" Exportacion="01" LugarExpedicion="20000" NoCertificado="1" Certificado="c" Sello=""/>`
	cadena, err := BuildCadena([]byte(xml), SelectorTFD)
	require.NoError(t, err)
	assert.Empty(t, cadena)
}

// Selector desconocido: error.
func TestBuildCadena_SelectorInvalido(t *testing.T) {
	_, err := BuildCadena([]byte(cfdiTimbrado), "otro")
	assert.Error(t, err)
}
