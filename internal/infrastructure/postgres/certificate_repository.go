package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

// CertificateRepo registro de certificados CSD sobre PostgreSQL. El contenido
// criptográfico (DER y llave PEM cifrada) viaja en la fila; el descifrado
// ocurre en el gateway por operación.
type CertificateRepo struct {
	q Querier
}

// NewCertificateRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCertificateRepository(q Querier) *CertificateRepo {
	return &CertificateRepo{q: q}
}

// ListValid certificados vigentes de la empresa, el más reciente primero.
func (r *CertificateRepo) ListValid(ctx context.Context, companyID string) ([]entity.Certificate, error) {
	const q = `
		SELECT id, company_id, serial_number, cer_der, key_pem, COALESCE(password, ''),
		       valid_from, valid_to, created_at
		FROM certificates
		WHERE company_id = $1
		  AND valid_from <= now()
		  AND valid_to   >= now()
		ORDER BY valid_from DESC`
	rows, err := r.q.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var list []entity.Certificate
	for rows.Next() {
		var c entity.Certificate
		if err := rows.Scan(
			&c.ID, &c.CompanyID, &c.SerialNumber, &c.CerDER, &c.KeyPEM, &c.Password,
			&c.ValidFrom, &c.ValidTo, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
