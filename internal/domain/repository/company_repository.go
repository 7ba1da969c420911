package repository

import (
	"context"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// CompanyRepository acceso a empresas emisoras.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	// Root devuelve la empresa raíz (la más cercana con RFC) de la dada.
	Root(ctx context.Context, id string) (*entity.Company, error)
}

// PartnerRepository datos fiscales de receptores.
type PartnerRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Partner, error)
}

// CertificateRepository registro de certificados CSD.
type CertificateRepository interface {
	// ListValid certificados vigentes de la empresa, el más reciente primero.
	ListValid(ctx context.Context, companyID string) ([]entity.Certificate, error)
}
