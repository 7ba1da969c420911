// Gateway de certificados CSD: resolución del certificado activo y primitivas
// de firma. La llave se carga por operación y no se cachea entre llamadas.

package cfdi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

// CertificateGateway resuelve el CSD activo de una empresa: primero el propio,
// después el de la raíz con RFC.
type CertificateGateway struct {
	certs repository.CertificateRepository
	now   func() time.Time
}

// NewCertificateGateway construye el gateway.
func NewCertificateGateway(certs repository.CertificateRepository) *CertificateGateway {
	return &CertificateGateway{certs: certs, now: time.Now}
}

// PickActive implementa invoicing.CertificateGateway.
func (g *CertificateGateway) PickActive(ctx context.Context, company *entity.Company) (invoicing.SigningCertificate, error) {
	if company == nil {
		return nil, domain.ErrNoCertificate
	}
	ids := []string{company.ID}
	if company.RootID != "" && company.RootID != company.ID {
		ids = append(ids, company.RootID)
	}
	now := g.now()
	for _, id := range ids {
		list, err := g.certs.ListValid(ctx, id)
		if err != nil {
			return nil, err
		}
		for i := range list {
			if !list[i].IsValid(now) {
				continue
			}
			cert, err := loadCSD(&list[i])
			if err != nil {
				return nil, err
			}
			return cert, nil
		}
	}
	return nil, domain.ErrNoCertificate
}

// csdCertificate certificado cargado con su llave RSA lista para firmar.
type csdCertificate struct {
	cert     *x509.Certificate
	key      *rsa.PrivateKey
	keyPEM   []byte
	password string
}

// loadCSD materializa el par certificado/llave desde el registro.
func loadCSD(c *entity.Certificate) (*csdCertificate, error) {
	cert, err := x509.ParseCertificate(c.CerDER)
	if err != nil {
		return nil, fmt.Errorf("cert: parsear DER: %w", err)
	}
	key, err := parsePrivateKey(c.KeyPEM, c.Password)
	if err != nil {
		return nil, err
	}
	return &csdCertificate{cert: cert, key: key, keyPEM: c.KeyPEM, password: c.Password}, nil
}

// parsePrivateKey acepta llaves PKCS#8 y PKCS#1 en PEM, cifradas o no.
func parsePrivateKey(pemBytes []byte, password string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("cert: la llave no es PEM")
	}
	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) {
		var err error
		der, err = x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, fmt.Errorf("cert: descifrar llave: %w", err)
		}
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("cert: parsear llave: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cert: la llave no es RSA")
	}
	return key, nil
}

// CertificateFromP12 decodifica un .p12/.pfx de CSD al registro de dominio
// (ruta de alta de certificados).
func CertificateFromP12(data []byte, password string) (*entity.Certificate, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("cert: decodificar p12: %w", err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cert: el p12 no trae llave RSA")
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cert: serializar llave: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return &entity.Certificate{
		SerialNumber: satSerial(cert),
		CerDER:       cert.Raw,
		KeyPEM:       keyPEM,
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}, nil
}

// satSerial el NoCertificado: el serial x509 del CSD codifica cada dígito como
// un par ASCII; la serie SAT son los caracteres en posición impar del hex.
func satSerial(cert *x509.Certificate) string {
	hex := cert.SerialNumber.Text(16)
	if len(hex)%2 != 0 {
		hex = "0" + hex
	}
	out := make([]byte, 0, len(hex)/2)
	for i := 1; i < len(hex); i += 2 {
		out = append(out, hex[i])
	}
	return string(out)
}

// ── invoicing.SigningCertificate ─────────────────────────────────────────────

func (c *csdCertificate) SerialNumber() string { return satSerial(c.cert) }

func (c *csdCertificate) DERBase64() string {
	return base64.StdEncoding.EncodeToString(c.cert.Raw)
}

func (c *csdCertificate) CerPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.cert.Raw})
}

func (c *csdCertificate) KeyPEM() []byte { return c.keyPEM }

func (c *csdCertificate) Password() string { return c.password }

// Sign firma la cadena original con PKCS#1 v1.5 SHA-256 y devuelve base64.
func (c *csdCertificate) Sign(cadena string) (string, error) {
	digest := sha256.Sum256([]byte(cadena))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("cert: firmar cadena: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
