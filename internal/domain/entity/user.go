package entity

import "time"

// Roles de usuario de la API.
const (
	RoleAdmin       = "admin"
	RoleFacturacion = "facturacion"
	RoleConsulta    = "consulta"
)

// User usuario de la API (operadores del motor de timbrado).
type User struct {
	ID           string
	CompanyID    string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       string // active | suspended
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
