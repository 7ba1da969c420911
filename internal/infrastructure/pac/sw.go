package pac

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// Endpoints SW Sapien (REST).
const (
	swURLTest = "https://services.test.sw.com.mx"
	swURLProd = "https://services.sw.com.mx"

	swPathAuth   = "/security/authenticate"
	swPathStamp  = "/cfdi33/stamp/v3/b64"
	swPathCancel = "/cfdi33/cancel/csd"
)

// SW adapter REST del PAC SW Sapien. A diferencia de los SOAP, autentica con
// bearer token: o el token almacenado de la empresa o uno obtenido por
// usuario/contraseña en cada operación.
type SW struct {
	client *http.Client
	url    string // sobreescribible en pruebas
}

// NewSW construye el adapter.
func NewSW() *SW { return &SW{client: newHTTPClient()} }

// Name implementa invoicing.PacProvider.
func (s *SW) Name() string { return "sw" }

// Credentials acepta token directo o usuario/contraseña; en producción exige
// al menos uno de los dos.
func (s *SW) Credentials(c *entity.Company) (invoicing.PacCredentials, error) {
	creds := invoicing.PacCredentials{
		Username: c.PacUsername,
		Password: c.PacPassword,
		Token:    c.PacToken,
		TestEnv:  c.PacTestEnv,
	}
	if c.PacTestEnv {
		if creds.Token == "" && creds.Username == "" {
			creds.Username = "demo@sw.com.mx"
			creds.Password = "123456789"
		}
		return creds, nil
	}
	if creds.Token == "" && (creds.Username == "" || creds.Password == "") {
		return invoicing.PacCredentials{}, domain.ErrNoPacCreds
	}
	return creds, nil
}

func (s *SW) base(creds invoicing.PacCredentials) string {
	if s.url != "" {
		return s.url
	}
	if creds.TestEnv {
		return swURLTest
	}
	return swURLProd
}

type swAuthResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	Message string `json:"message"`
}

// token devuelve el bearer: el almacenado, o el emitido por authenticate.
func (s *SW) token(ctx context.Context, creds invoicing.PacCredentials) (string, error) {
	if creds.Token != "" {
		return creds.Token, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base(creds)+swPathAuth, nil)
	if err != nil {
		return "", fmt.Errorf("sw: crear request: %w", err)
	}
	req.Header.Set("user", creds.Username)
	req.Header.Set("password", creds.Password)

	var resp swAuthResponse
	if err := s.doJSON(req, &resp); err != nil {
		return "", err
	}
	if resp.Data.Token == "" {
		return "", fmt.Errorf("sw: autenticación rechazada: %s", resp.Message)
	}
	return resp.Data.Token, nil
}

func (s *SW) doJSON(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sw: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("sw: leer respuesta: %w", err)
	}
	// SW responde JSON también en errores HTTP; se parsea siempre que se pueda.
	if jerr := json.Unmarshal(body, out); jerr != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sw: HTTP %d: %s", resp.StatusCode, truncate(body, 512))
		}
		return fmt.Errorf("sw: respuesta ilegible: %v", jerr)
	}
	return nil
}

type swStampResponse struct {
	Status string `json:"status"`
	Data   struct {
		Cfdi string `json:"cfdi"`
	} `json:"data"`
	Message       string `json:"message"`
	MessageDetail string `json:"messageDetail"`
}

// Sign timbra por multipart base64. El código 307 de SW significa "ya
// timbrado": el detalle trae el CFDI firmado y se trata como éxito.
func (s *SW) Sign(ctx context.Context, creds invoicing.PacCredentials, cfdiXML []byte) invoicing.SignResult {
	token, err := s.token(ctx, creds)
	if err != nil {
		return invoicing.SignResult{Errors: errorsOf("%v", err)}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormField("xml")
	if err == nil {
		_, err = fw.Write([]byte(base64.StdEncoding.EncodeToString(cfdiXML)))
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return invoicing.SignResult{Errors: errorsOf("sw: armar multipart: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base(creds)+swPathStamp, &buf)
	if err != nil {
		return invoicing.SignResult{Errors: errorsOf("sw: crear request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp swStampResponse
	if err := s.doJSON(req, &resp); err != nil {
		return invoicing.SignResult{Errors: errorsOf("%v", err)}
	}

	b64 := resp.Data.Cfdi
	if resp.Status != "success" {
		if strings.HasPrefix(resp.Message, "307") {
			b64 = resp.MessageDetail
		} else {
			return invoicing.SignResult{Errors: errorsOf("sw: %s - %s", resp.Message, resp.MessageDetail)}
		}
	}
	signed, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return invoicing.SignResult{Errors: errorsOf("sw: cfdi ilegible: %v", err)}
	}
	return invoicing.SignResult{Cfdi: signed}
}

type swCancelResponse struct {
	Status string `json:"status"`
	Data   struct {
		Acuse string            `json:"acuse"`
		UUID  map[string]string `json:"uuid"`
	} `json:"data"`
	Message       string `json:"message"`
	MessageDetail string `json:"messageDetail"`
}

// Cancel cancela por CSD en JSON; éxito iff status success y el código por
// UUID ∈ {201, 202}.
func (s *SW) Cancel(ctx context.Context, creds invoicing.PacCredentials, req invoicing.CancelRequest) invoicing.CancelResult {
	token, err := s.token(ctx, creds)
	if err != nil {
		return invoicing.CancelResult{Errors: errorsOf("%v", err)}
	}

	payload := map[string]string{
		"rfc":      req.RFC,
		"b64Cer":   base64.StdEncoding.EncodeToString(req.CerPEM),
		"b64Key":   base64.StdEncoding.EncodeToString(req.KeyPEM),
		"password": req.KeyPassword,
		"uuid":     req.UUID,
		"motivo":   req.Reason,
	}
	if req.SubstituteUUID != "" {
		payload["folioSustitucion"] = req.SubstituteUUID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return invoicing.CancelResult{Errors: errorsOf("sw: armar solicitud: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base(creds)+swPathCancel, bytes.NewReader(body))
	if err != nil {
		return invoicing.CancelResult{Errors: errorsOf("sw: crear request: %v", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	var resp swCancelResponse
	if err := s.doJSON(httpReq, &resp); err != nil {
		return invoicing.CancelResult{Errors: errorsOf("%v", err)}
	}
	if resp.Status != "success" {
		return invoicing.CancelResult{Errors: errorsOf("sw: %s - %s", resp.Message, resp.MessageDetail)}
	}
	code, ok := resp.Data.UUID[strings.ToUpper(req.UUID)]
	if !ok {
		code = resp.Data.UUID[strings.ToLower(req.UUID)]
	}
	switch code {
	case "201", "202":
		return invoicing.CancelResult{}
	default:
		return invoicing.CancelResult{Errors: errorsOf("sw: folio %s estatus %s", req.UUID, code)}
	}
}
