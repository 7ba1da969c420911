package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound      = errors.New("recurso no encontrado")
	ErrInvalidInput  = errors.New("entrada inválida")
	ErrDuplicate     = errors.New("recurso duplicado")
	ErrUnauthorized  = errors.New("no autorizado")
	ErrForbidden     = errors.New("acceso denegado")
	ErrConflict      = errors.New("conflicto con el estado actual")

	// Errores de configuración fiscal: fallan antes de tocar la red y no
	// dejan fila de documento.
	ErrNoPac          = errors.New("no hay PAC configurado para la empresa")
	ErrNoPacCreds     = errors.New("no hay credenciales del PAC")
	ErrNoCertificate  = errors.New("no hay certificado CSD vigente")
	ErrNoSubstitute   = errors.New("la cancelación con motivo 01 requiere el UUID del CFDI sustituto")
)
