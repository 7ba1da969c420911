package entity

import "time"

// Certificate certificado de sello digital (CSD) registrado para una empresa.
// El contenido criptográfico vive en el gateway; aquí solo los metadatos y las
// rutas/los blobs necesarios para cargarlo por operación (nunca se cachea la
// llave en memoria entre llamadas).
type Certificate struct {
	ID           string
	CompanyID    string
	SerialNumber string // número de serie en dígitos pares (NoCertificado)
	CerDER       []byte // certificado DER
	KeyPEM       []byte // llave privada PEM (cifrada)
	Password     string
	ValidFrom    time.Time
	ValidTo      time.Time
	CreatedAt    time.Time
}

// IsValid indica si el certificado está dentro de su ventana de vigencia.
func (c *Certificate) IsValid(now time.Time) bool {
	return !now.Before(c.ValidFrom) && !now.After(c.ValidTo)
}
