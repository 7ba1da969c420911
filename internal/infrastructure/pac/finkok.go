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

// Endpoints Finkok (SOAP).
const (
	finkokStampTest  = "http://demo-facturacion.finkok.com/servicios/soap/stamp.wsdl"
	finkokStampProd  = "https://facturacion.finkok.com/servicios/soap/stamp.wsdl"
	finkokCancelTest = "http://demo-facturacion.finkok.com/servicios/soap/cancel.wsdl"
	finkokCancelProd = "https://facturacion.finkok.com/servicios/soap/cancel.wsdl"

	finkokNS = "http://facturacion.finkok.com/stamp"

	// Mensaje dedicado para el error de espera de Finkok tras la emisión.
	finkokDelayMessage = "A delay of 2 hours has to be respected before to cancel"
)

// Finkok adapter SOAP del PAC Finkok.
type Finkok struct {
	client *http.Client
	// sobreescribibles en pruebas
	stampURL  string
	cancelURL string
}

// NewFinkok construye el adapter.
func NewFinkok() *Finkok { return &Finkok{client: newHTTPClient()} }

// Name implementa invoicing.PacProvider.
func (f *Finkok) Name() string { return "finkok" }

// Credentials en pruebas usa las credenciales demo si no hay propias; en
// producción exige usuario y contraseña almacenados.
func (f *Finkok) Credentials(c *entity.Company) (invoicing.PacCredentials, error) {
	creds := invoicing.PacCredentials{
		Username: c.PacUsername,
		Password: c.PacPassword,
		TestEnv:  c.PacTestEnv,
	}
	if c.PacTestEnv {
		if creds.Username == "" {
			creds.Username = "cfdi@vauxoo.com"
			creds.Password = "vAux00__"
		}
		return creds, nil
	}
	if creds.Username == "" || creds.Password == "" {
		return invoicing.PacCredentials{}, domain.ErrNoPacCreds
	}
	return creds, nil
}

// ── Sign ─────────────────────────────────────────────────────────────────────

type finkokStampResponse struct {
	Xml        string `xml:"Body>stampResponse>stampResult>xml"`
	CodEstatus string `xml:"Body>stampResponse>stampResult>CodEstatus"`
	Incidences []struct {
		Code    string `xml:"CodigoError"`
		Message string `xml:"MensajeIncidencia"`
	} `xml:"Body>stampResponse>stampResult>Incidencias>Incidencia"`
}

// Sign timbra vía la operación stamp; éxito si la respuesta trae xml no vacío.
func (f *Finkok) Sign(ctx context.Context, creds invoicing.PacCredentials, cfdiXML []byte) invoicing.SignResult {
	url := f.stampURL
	if url == "" {
		url = finkokStampProd
		if creds.TestEnv {
			url = finkokStampTest
		}
	}
	envelope := buildFinkokEnvelope("stamp", map[string]string{
		"xml":      base64.StdEncoding.EncodeToString(cfdiXML),
		"username": creds.Username,
		"password": creds.Password,
	})
	body, err := postSOAP(ctx, f.client, url, "", envelope)
	if err != nil {
		return invoicing.SignResult{Errors: errorsOf("finkok: %v", err)}
	}

	var resp finkokStampResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return invoicing.SignResult{Errors: errorsOf("finkok: respuesta ilegible: %v", err)}
	}
	if resp.Xml != "" {
		return invoicing.SignResult{Cfdi: []byte(resp.Xml)}
	}
	var errs []string
	for _, inc := range resp.Incidences {
		errs = append(errs, "finkok: "+inc.Code+" - "+inc.Message)
	}
	if len(errs) == 0 {
		errs = errorsOf("finkok: %s", resp.CodEstatus)
	}
	return invoicing.SignResult{Errors: errs}
}

// ── Cancel ───────────────────────────────────────────────────────────────────

type finkokCancelResponse struct {
	CodEstatus string `xml:"Body>cancelResponse>cancelResult>CodEstatus"`
	Folios     []struct {
		UUID        string `xml:"UUID"`
		EstatusUUID string `xml:"EstatusUUID"`
	} `xml:"Body>cancelResponse>cancelResult>Folios>Folio"`
}

// Cancel solicita la cancelación; éxito iff EstatusUUID del folio ∈ {201, 202}.
// El error de espera de Finkok se traduce al mensaje dedicado.
func (f *Finkok) Cancel(ctx context.Context, creds invoicing.PacCredentials, req invoicing.CancelRequest) invoicing.CancelResult {
	url := f.cancelURL
	if url == "" {
		url = finkokCancelProd
		if creds.TestEnv {
			url = finkokCancelTest
		}
	}
	uuid := req.UUID + "|" + req.Reason
	if req.SubstituteUUID != "" {
		uuid += "|" + req.SubstituteUUID
	}
	envelope := buildFinkokEnvelope("cancel", map[string]string{
		"UUIDS":    uuid,
		"username": creds.Username,
		"password": creds.Password,
		"taxpayer_id": req.RFC,
		"cer":      base64.StdEncoding.EncodeToString(req.CerPEM),
		"key":      base64.StdEncoding.EncodeToString(req.KeyPEM),
	})
	body, err := postSOAP(ctx, f.client, url, "", envelope)
	if err != nil {
		return invoicing.CancelResult{Errors: errorsOf("finkok: %v", err)}
	}

	var resp finkokCancelResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return invoicing.CancelResult{Errors: errorsOf("finkok: respuesta ilegible: %v", err)}
	}
	for _, folio := range resp.Folios {
		switch folio.EstatusUUID {
		case "201", "202":
			return invoicing.CancelResult{}
		case "205":
			return invoicing.CancelResult{Errors: []string{finkokDelayMessage}}
		default:
			return invoicing.CancelResult{
				Errors: errorsOf("finkok: folio %s estatus %s", folio.UUID, folio.EstatusUUID),
			}
		}
	}
	if strings.Contains(resp.CodEstatus, "espera") {
		return invoicing.CancelResult{NeedsAcceptance: true}
	}
	return invoicing.CancelResult{Errors: errorsOf("finkok: %s", resp.CodEstatus)}
}

// buildFinkokEnvelope arma el envelope SOAP 1.1 con los campos en orden.
func buildFinkokEnvelope(op string, fields map[string]string) []byte {
	order := []string{"xml", "UUIDS", "username", "password", "taxpayer_id", "cer", "key"}
	var sb strings.Builder
	sb.WriteString(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:stam="` + finkokNS + `">`)
	sb.WriteString("<soapenv:Header/><soapenv:Body>")
	sb.WriteString("<stam:" + op + ">")
	for _, name := range order {
		if v, ok := fields[name]; ok {
			sb.WriteString("<stam:" + name + ">")
			xml.EscapeText(&sb, []byte(v))
			sb.WriteString("</stam:" + name + ">")
		}
	}
	sb.WriteString("</stam:" + op + ">")
	sb.WriteString("</soapenv:Body></soapenv:Envelope>")
	return []byte(sb.String())
}
