package pac

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// Endpoints Solución Factible (SOAP).
const (
	solfactURLTest = "https://testing.solucionfactible.com/ws/services/Timbrado"
	solfactURLProd = "https://solucionfactible.com/ws/services/Timbrado"

	solfactNS = "http://timbrado.ws.cfdi.solucionfactible.com"
)

// Solfact adapter SOAP del PAC Solución Factible.
type Solfact struct {
	client *http.Client
	url    string // sobreescribible en pruebas
}

// NewSolfact construye el adapter.
func NewSolfact() *Solfact { return &Solfact{client: newHTTPClient()} }

// Name implementa invoicing.PacProvider.
func (s *Solfact) Name() string { return "solfact" }

// Credentials demo en pruebas; almacenadas y obligatorias en producción.
func (s *Solfact) Credentials(c *entity.Company) (invoicing.PacCredentials, error) {
	creds := invoicing.PacCredentials{
		Username: c.PacUsername,
		Password: c.PacPassword,
		TestEnv:  c.PacTestEnv,
	}
	if c.PacTestEnv {
		if creds.Username == "" {
			creds.Username = "testing@solucionfactible.com"
			creds.Password = "timbrado.SF.16672"
		}
		return creds, nil
	}
	if creds.Username == "" || creds.Password == "" {
		return invoicing.PacCredentials{}, domain.ErrNoPacCreds
	}
	return creds, nil
}

type solfactTimbrarResponse struct {
	Status  string `xml:"Body>timbrarResponse>timbrarReturn>status"`
	Message string `xml:"Body>timbrarResponse>timbrarReturn>mensaje"`
	Results []struct {
		Status       string `xml:"status"`
		Message      string `xml:"mensaje"`
		CfdiTimbrado string `xml:"cfdiTimbrado"`
	} `xml:"Body>timbrarResponse>timbrarReturn>resultados"`
}

// Sign operación timbrar; éxito iff status 200 con cfdiTimbrado presente.
func (s *Solfact) Sign(ctx context.Context, creds invoicing.PacCredentials, cfdiXML []byte) invoicing.SignResult {
	url := s.endpoint(creds)
	envelope := buildSolfactEnvelope("timbrar", [][2]string{
		{"usuario", creds.Username},
		{"contrasena", creds.Password},
		{"cfdi", base64.StdEncoding.EncodeToString(cfdiXML)},
		{"zip", "false"},
	})
	body, err := postSOAP(ctx, s.client, url, "", envelope)
	if err != nil {
		return invoicing.SignResult{Errors: errorsOf("solfact: %v", err)}
	}

	var resp solfactTimbrarResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return invoicing.SignResult{Errors: errorsOf("solfact: respuesta ilegible: %v", err)}
	}
	if resp.Status == "200" {
		for _, r := range resp.Results {
			if r.CfdiTimbrado != "" {
				decoded, derr := base64.StdEncoding.DecodeString(r.CfdiTimbrado)
				if derr != nil {
					return invoicing.SignResult{Errors: errorsOf("solfact: cfdi ilegible: %v", derr)}
				}
				return invoicing.SignResult{Cfdi: decoded}
			}
		}
	}
	msg := resp.Message
	for _, r := range resp.Results {
		if r.Message != "" {
			msg = r.Status + " - " + r.Message
			break
		}
	}
	return invoicing.SignResult{Errors: errorsOf("solfact: %s", msg)}
}

type solfactCancelResponse struct {
	Status  string `xml:"Body>cancelarResponse>cancelarReturn>status"`
	Message string `xml:"Body>cancelarResponse>cancelarReturn>mensaje"`
	Results []struct {
		UUID       string `xml:"uuid"`
		StatusUUID string `xml:"statusUUID"`
		Message    string `xml:"mensaje"`
	} `xml:"Body>cancelarResponse>cancelarReturn>resultados"`
}

// Cancel operación cancelar con "uuid|motivo[|sustituto]"; éxito iff el status
// global ∈ {200, 201} y el statusUUID del folio ∈ {201, 202}.
func (s *Solfact) Cancel(ctx context.Context, creds invoicing.PacCredentials, req invoicing.CancelRequest) invoicing.CancelResult {
	uuids := req.UUID + "|" + req.Reason
	if req.SubstituteUUID != "" {
		uuids += "|" + req.SubstituteUUID
	}
	envelope := buildSolfactEnvelope("cancelar", [][2]string{
		{"usuario", creds.Username},
		{"contrasena", creds.Password},
		{"uuids", uuids},
		{"cer", base64.StdEncoding.EncodeToString(req.CerPEM)},
		{"key", base64.StdEncoding.EncodeToString(req.KeyPEM)},
		{"clavePrivada", req.KeyPassword},
	})
	body, err := postSOAP(ctx, s.client, s.endpoint(creds), "", envelope)
	if err != nil {
		return invoicing.CancelResult{Errors: errorsOf("solfact: %v", err)}
	}

	var resp solfactCancelResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return invoicing.CancelResult{Errors: errorsOf("solfact: respuesta ilegible: %v", err)}
	}
	if resp.Status == "200" || resp.Status == "201" {
		for _, r := range resp.Results {
			switch r.StatusUUID {
			case "201", "202":
				return invoicing.CancelResult{}
			default:
				return invoicing.CancelResult{
					Errors: errorsOf("solfact: folio %s estatus %s - %s", r.UUID, r.StatusUUID, r.Message),
				}
			}
		}
		return invoicing.CancelResult{}
	}
	return invoicing.CancelResult{Errors: errorsOf("solfact: %s - %s", resp.Status, resp.Message)}
}

func (s *Solfact) endpoint(creds invoicing.PacCredentials) string {
	if s.url != "" {
		return s.url
	}
	if creds.TestEnv {
		return solfactURLTest
	}
	return solfactURLProd
}

// buildSolfactEnvelope envelope SOAP 1.1 con campos ordenados (el WS valida
// el orden de los hijos).
func buildSolfactEnvelope(op string, fields [][2]string) []byte {
	var sb strings.Builder
	sb.WriteString(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tim="` + solfactNS + `">`)
	sb.WriteString("<soapenv:Header/><soapenv:Body>")
	sb.WriteString("<tim:" + op + ">")
	for _, f := range fields {
		sb.WriteString("<tim:" + f[0] + ">")
		xml.EscapeText(&sb, []byte(f[1]))
		sb.WriteString("</tim:" + f[0] + ">")
	}
	sb.WriteString("</tim:" + op + ">")
	sb.WriteString("</soapenv:Body></soapenv:Envelope>")
	return []byte(sb.String())
}
