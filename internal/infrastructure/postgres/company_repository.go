package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementación del puerto CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador de persistencia para empresas.
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

const companyColumns = `id, COALESCE(root_id, ''), name, COALESCE(rfc, ''),
	COALESCE(fiscal_regime, ''), COALESCE(zip, ''), COALESCE(timezone, ''),
	COALESCE(pac_name, ''), pac_test_env, COALESCE(pac_username, ''),
	COALESCE(pac_password, ''), COALESCE(pac_token, ''), created_at, updated_at`

// GetByID obtiene una empresa por ID; nil, nil si no existe.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	q := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	c, err := scanCompany(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// Root devuelve la empresa raíz: la más cercana en la cadena de root_id que
// tiene RFC. Una empresa con RFC es su propia raíz. Se sube iterativamente
// con tope de 10 niveles.
func (r *CompanyRepo) Root(ctx context.Context, id string) (*entity.Company, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil || current == nil {
		return current, err
	}
	for depth := 0; depth < 10; depth++ {
		if current.RFC != "" || current.RootID == "" {
			return current, nil
		}
		parent, err := r.GetByID(ctx, current.RootID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return current, nil
		}
		current = parent
	}
	return nil, fmt.Errorf("root company de %s: jerarquía demasiado profunda", id)
}

func scanCompany(row pgxScanner) (*entity.Company, error) {
	var c entity.Company
	err := row.Scan(
		&c.ID, &c.RootID, &c.Name, &c.RFC,
		&c.FiscalRegime, &c.Zip, &c.Timezone,
		&c.PacName, &c.PacTestEnv, &c.PacUsername,
		&c.PacPassword, &c.PacToken, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
