package invoicing_test

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// ── Empresas y certificados ───────────────────────────────────────────────────

type fakeCompanies struct {
	companies map[string]*entity.Company
	roots     map[string]*entity.Company
}

func newFakeCompanies() *fakeCompanies {
	root := &entity.Company{
		ID:           "co-root",
		Name:         "Empresa Pruebas, S.A. de C.V.",
		RFC:          "EKU9003173C9",
		FiscalRegime: "601",
		Zip:          "20000",
		Timezone:     "America/Mexico_City",
		PacName:      "finkok",
		PacUsername:  "demo",
		PacPassword:  "demo",
		PacTestEnv:   true,
	}
	return &fakeCompanies{
		companies: map[string]*entity.Company{"co-root": root},
		roots:     map[string]*entity.Company{"co-root": root},
	}
}

func (f *fakeCompanies) GetByID(_ context.Context, id string) (*entity.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCompanies) Root(_ context.Context, id string) (*entity.Company, error) {
	c, ok := f.roots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type fakeCert struct{}

func (fakeCert) SerialNumber() string            { return "30001000000400002434" }
func (fakeCert) DERBase64() string               { return "TUlJQ2R6Q0NBZUNn" }
func (fakeCert) CerPEM() []byte                  { return []byte("CER") }
func (fakeCert) KeyPEM() []byte                  { return []byte("KEY") }
func (fakeCert) Password() string                { return "12345678a" }
func (fakeCert) Sign(string) (string, error)     { return "c2VsbG8=", nil }

type fakeCertGateway struct{ err error }

func (f fakeCertGateway) PickActive(context.Context, *entity.Company) (invoicing.SigningCertificate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fakeCert{}, nil
}

// ── Store de documentos en memoria ───────────────────────────────────────────

type fakeDocs struct {
	rows map[string]*entity.Document
}

func newFakeDocs() *fakeDocs { return &fakeDocs{rows: map[string]*entity.Document{}} }

func (f *fakeDocs) Insert(_ context.Context, d *entity.Document) error {
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeDocs) Update(_ context.Context, d *entity.Document) error {
	if _, ok := f.rows[d.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeDocs) GetByID(_ context.Context, id string) (*entity.Document, error) {
	d, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) ListBySource(_ context.Context, model, sourceID string) ([]entity.Document, error) {
	var out []entity.Document
	for _, d := range f.rows {
		if d.SourceModel == model && d.SourceID == sourceID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Datetime.Equal(out[j].Datetime) {
			return out[i].Datetime.After(out[j].Datetime)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeDocs) FindSentByUUID(_ context.Context, uuid string) (*entity.Document, error) {
	for _, d := range f.rows {
		if d.AttachmentUUID == uuid && d.IsSent() && d.SatState != entity.SatStateSkip {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDocs) SetSatState(_ context.Context, ids []string, satState, message string) error {
	for _, id := range ids {
		if d, ok := f.rows[id]; ok {
			d.SatState = satState
			d.Message = message
		}
	}
	return nil
}

func (f *fakeDocs) ListForSatPoll(_ context.Context, limit int) ([]entity.Document, error) {
	var out []entity.Document
	for _, d := range f.rows {
		switch d.SatState {
		case entity.SatStateValid, entity.SatStateCancelled, entity.SatStateSkip:
			continue
		}
		if d.IsSent() || d.IsCancel() || d.State == entity.StateInvoiceCancelRequested ||
			d.State == entity.StateInvoiceReceived {
			out = append(out, *d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDocs) bySource(model, id string) []entity.Document {
	out, _ := f.ListBySource(context.Background(), model, id)
	return out
}

// ── Folios ───────────────────────────────────────────────────────────────────

type fakeFolios struct {
	seq       entity.FolioSequence
	committed []int64
}

func newFakeFolios() *fakeFolios {
	return &fakeFolios{seq: entity.FolioSequence{
		ID: "seq-1", CompanyID: "co-root",
		Prefix: "GI/%(year)s/", Padding: 5, NumberNext: 7,
	}}
}

func (f *fakeFolios) GetByCompany(context.Context, string) (*entity.FolioSequence, error) {
	cp := f.seq
	return &cp, nil
}

func (f *fakeFolios) NextNumber(context.Context, string) (int64, error) {
	n := f.seq.NumberNext
	f.seq.NumberNext++
	return n, nil
}

// Commit reproduce la semántica del repo: number_next nunca retrocede y
// avanza al consumido + 1 si quedó atrás.
func (f *fakeFolios) Commit(_ context.Context, _ string, consumed int64) error {
	f.committed = append(f.committed, consumed)
	if consumed+1 > f.seq.NumberNext {
		f.seq.NumberNext = consumed + 1
	}
	return nil
}

// ── PAC, render, decode, SAT ─────────────────────────────────────────────────

type fakePac struct {
	name       string
	signErrs   []string
	cancelErrs []string
	needsAccept bool
	signed     [][]byte
	cancelled  []invoicing.CancelRequest
}

func (f *fakePac) Name() string { return f.name }

func (f *fakePac) Credentials(c *entity.Company) (invoicing.PacCredentials, error) {
	if c.PacUsername == "" {
		return invoicing.PacCredentials{}, domain.ErrNoPacCreds
	}
	return invoicing.PacCredentials{Username: c.PacUsername, Password: c.PacPassword, TestEnv: c.PacTestEnv}, nil
}

func (f *fakePac) Sign(_ context.Context, _ invoicing.PacCredentials, xml []byte) invoicing.SignResult {
	f.signed = append(f.signed, xml)
	if len(f.signErrs) > 0 {
		return invoicing.SignResult{Errors: f.signErrs}
	}
	return invoicing.SignResult{Cfdi: append([]byte("STAMPED:"), xml...)}
}

func (f *fakePac) Cancel(_ context.Context, _ invoicing.PacCredentials, req invoicing.CancelRequest) invoicing.CancelResult {
	f.cancelled = append(f.cancelled, req)
	return invoicing.CancelResult{Errors: f.cancelErrs, NeedsAcceptance: f.needsAccept}
}

type fakeRenderer struct{ err error }

func (f fakeRenderer) Render(_ context.Context, v *invoicing.Values, _ invoicing.SigningCertificate) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("<cfdi serie=%q total=%q/>", v.Serie, v.Total.String())), nil
}

type fakeDecoder struct {
	uuid string
	err  error
}

func (f fakeDecoder) Decode([]byte) (*invoicing.DecodedCfdi, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &invoicing.DecodedCfdi{
		UUID:        f.uuid,
		EmisorRFC:   "EKU9003173C9",
		ReceptorRFC: "XAXX010101000",
		Total:       decimal.RequireFromString("116.00"),
	}, nil
}

type fakeSat struct {
	state string
	msg   string
	calls int
}

func (f *fakeSat) Status(context.Context, string, string, string, decimal.Decimal) (string, string) {
	f.calls++
	return f.state, f.msg
}

type nopCheckpoint struct{}

func (nopCheckpoint) Checkpoint(context.Context) error { return nil }

type fakeTaxes struct{}

func (fakeTaxes) ComputeTaxDetails(_ context.Context, lines []entity.BaseLine, _ *entity.Company) ([]entity.BaseLine, error) {
	return lines, nil
}

func (fakeTaxes) DispatchCriteria() []cfdi.MatchCriterion { return nil }
