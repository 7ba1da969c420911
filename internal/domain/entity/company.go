package entity

import "time"

// Company empresa emisora. RootID apunta a la empresa matriz con RFC (la
// "root company"), que resuelve certificado, PAC y folios de la factura global.
type Company struct {
	ID           string
	RootID       string // vacío si esta empresa es la raíz
	Name         string
	RFC          string
	FiscalRegime string // c_RegimenFiscal
	Zip          string // código postal = LugarExpedicion
	Timezone     string // zona horaria CFDI, ej. "America/Mexico_City"
	PacName      string // "finkok" | "solfact" | "sw"; vacío = sin PAC
	PacTestEnv   bool   // true = endpoints y credenciales de pruebas
	PacUsername  string
	PacPassword  string
	PacToken     string // solo SW: bearer almacenado en lugar de usuario/contraseña
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Partner datos fiscales del receptor (cliente).
type Partner struct {
	ID             string
	Name           string
	VAT            string // RFC; vacío = receptor genérico
	CountryCode    string // ISO-3166 alpha-2, "MX" para nacional
	SatCountryCode string // c_Pais del SAT (para ResidenciaFiscal)
	FiscalRegime   string // c_RegimenFiscal del receptor
	Zip            string
	NoTaxBreakdown bool // receptor que opta por no desglosar impuestos (ObjetoImp 03)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsForeign indica si el receptor reside fuera de México.
func (p *Partner) IsForeign() bool {
	return p.CountryCode != "" && p.CountryCode != "MX"
}
