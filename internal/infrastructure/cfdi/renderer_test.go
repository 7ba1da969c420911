package cfdi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
)

func testCSD(t *testing.T) *csdCertificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(0x3030303130303031),
		Subject:      pkix.Name{CommonName: "EKU9003173C9"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(4 * 365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &csdCertificate{cert: cert, key: key}
}

func valoresPrueba() *invoicing.Values {
	v := &invoicing.Values{
		Certificate: invoicing.CertificateValues{
			NoCertificado: "30001000000400002434",
			Certificado:   "Q0VSVA==",
		},
		Emisor: invoicing.EmisorValues{
			Rfc: "EKU9003173C9", Nombre: "EMPRESA PRUEBAS", RegimenFiscal: "601",
		},
		Receptor: invoicing.ReceptorValues{
			Rfc: "CACX7605101P8", Nombre: "CLIENTE UNO",
			DomicilioFiscal: "86991", RegimenFiscal: "612", UsoCfdi: "G03",
		},
		Moneda: "MXN", Precision: 2,
		Serie: "INV/2024/", Folio: "42",
		Fecha:             "2024-03-15T23:59:00",
		TipoDeComprobante: "I", LugarExpedicion: "20000",
		Exportacion: "01", MetodoPago: "PUE", FormaPago: "03",
		ObjetoImp: "02",
		Subtotal:  decimal.RequireFromString("100.00"),
		Total:     decimal.RequireFromString("116.00"),
	}
	importe := decimal.RequireFromString("16.00")
	tasa := decimal.RequireFromString("0.16")
	entry := invoicing.TaxEntry{
		Base: decimal.RequireFromString("100.00"), Importe: &importe,
		Impuesto: "002", TipoFactor: "Tasa", TasaOCuota: &tasa,
	}
	v.Conceptos = []invoicing.Concepto{{
		ClaveProdServ: "01010101", Cantidad: decimal.NewFromInt(1),
		ClaveUnidad: "H87", Descripcion: "Producto de prueba",
		ValorUnitario: decimal.RequireFromString("100.00"),
		Importe:       decimal.RequireFromString("100.00"),
		ObjetoImp:     "02",
		Traslados:     []invoicing.TaxEntry{entry},
	}}
	v.Traslados = []invoicing.TaxEntry{entry}
	v.TotalImpuestosTrasladados = &importe
	return v
}

// El XML arranca con la declaración exacta con comillas dobles y trae el
// Sello sobre la raíz.
func TestRender_DeclaracionYSello(t *testing.T) {
	out, err := NewRenderer().Render(context.Background(), valoresPrueba(), testCSD(t))
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"))
	assert.Contains(t, s, `Sello="`)
	assert.Contains(t, s, `Version="4.0"`)
	assert.NotContains(t, s, `Sello=""`)
}

// Sin impuestos locales el schemaLocation declara únicamente el par de cfdi.
func TestRender_SchemaLocationPodado(t *testing.T) {
	out, err := NewRenderer().Render(context.Background(), valoresPrueba(), testCSD(t))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "implocal")
}

// El sello verifica contra la llave del certificado usando la cadena original
// del árbol final.
func TestRender_SelloVerificable(t *testing.T) {
	cert := testCSD(t)
	out, err := NewRenderer().Render(context.Background(), valoresPrueba(), cert)
	require.NoError(t, err)

	decoded, err := NewDecoder().Decode(out)
	require.NoError(t, err)
	cadena, err := BuildCadena(out, SelectorComprobante)
	require.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(decoded.SelloCFDI)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(cadena))
	assert.NoError(t, rsa.VerifyPKCS1v15(&cert.key.PublicKey, crypto.SHA256, digest[:], sig))
}

// Ida y vuelta decode(render(values)): RFCs, totales, número de líneas,
// régimen y objeto imp se conservan.
func TestRender_IdaYVuelta(t *testing.T) {
	out, err := NewRenderer().Render(context.Background(), valoresPrueba(), testCSD(t))
	require.NoError(t, err)

	d, err := NewDecoder().Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "EKU9003173C9", d.EmisorRFC)
	assert.Equal(t, "CACX7605101P8", d.ReceptorRFC)
	assert.Equal(t, "601", d.RegimenFiscal)
	assert.Equal(t, "100", d.Subtotal.String())
	assert.Equal(t, "116", d.Total.String())
	assert.Equal(t, "MXN", d.Moneda)
	assert.Equal(t, 1, d.NumConceptos)
	assert.Equal(t, "02", d.ObjetoImpReceptor)
	assert.Equal(t, "INV/2024/", d.Serie)
	assert.Equal(t, "42", d.Folio)
	assert.Empty(t, d.UUID, "sin TFD no hay folio fiscal")
}

// La serie SAT del certificado son los dígitos en posición impar del serial.
func TestSatSerial(t *testing.T) {
	cert := testCSD(t)
	// 0x3030303130303031 → hex "3030303130303031" → "00010001"
	assert.Equal(t, "00010001", cert.SerialNumber())
}
