package dto

import "github.com/jhoicas/cfdi-api/internal/domain/entity"

// CompanyResponse datos fiscales visibles de una empresa emisora. Las
// credenciales PAC nunca salen por la API.
type CompanyResponse struct {
	ID           string `json:"id"`
	RootID       string `json:"root_id,omitempty"`
	Name         string `json:"name"`
	RFC          string `json:"rfc,omitempty"`
	FiscalRegime string `json:"fiscal_regime,omitempty"`
	Zip          string `json:"zip,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	PacName      string `json:"pac_name,omitempty"`
	PacTestEnv   bool   `json:"pac_test_env"`
}

// ToCompanyResponse arma la respuesta de una empresa.
func ToCompanyResponse(c *entity.Company) CompanyResponse {
	return CompanyResponse{
		ID:           c.ID,
		RootID:       c.RootID,
		Name:         c.Name,
		RFC:          c.RFC,
		FiscalRegime: c.FiscalRegime,
		Zip:          c.Zip,
		Timezone:     c.Timezone,
		PacName:      c.PacName,
		PacTestEnv:   c.PacTestEnv,
	}
}
