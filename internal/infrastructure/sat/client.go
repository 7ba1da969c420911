// Package sat consulta el estado de un CFDI en el servicio público de
// consulta del SAT (ConsultaCFDIService).
package sat

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

const (
	satURL    = "https://consultaqr.facturaelectronica.sat.gob.mx/ConsultaCFDIService.svc"
	satAction = "http://tempuri.org/IConsultaCFDIService/Consulta"

	satTimeout = 20 * time.Second
)

// Client cliente SOAP de ConsultaCFDIService.
type Client struct {
	client *http.Client
	url    string // sobreescribible en pruebas
}

// NewClient construye el cliente con el timeout común.
func NewClient() *Client {
	return &Client{client: &http.Client{Timeout: satTimeout}, url: satURL}
}

type consultaResponse struct {
	Estado        string `xml:"Body>ConsultaResponse>ConsultaResult>Estado"`
	CodigoEstatus string `xml:"Body>ConsultaResponse>ConsultaResult>CodigoEstatus"`
}

// Status consulta el folio fiscal y devuelve el sat_state normalizado junto
// con el mensaje original del SAT. Toda falla de red o de parseo se reporta
// como estado de error: el poller decide si reintenta.
func (c *Client) Status(ctx context.Context, uuid, emisorRFC, receptorRFC string, total decimal.Decimal) (string, string) {
	expresion := fmt.Sprintf("?id=%s&re=%s&rr=%s&tt=%s", uuid, emisorRFC, receptorRFC, total.String())
	envelope := `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tem="http://tempuri.org/">` +
		`<soapenv:Header/><soapenv:Body><tem:Consulta><tem:expresionImpresa>` +
		`<![CDATA[` + expresion + `]]>` +
		`</tem:expresionImpresa></tem:Consulta></soapenv:Body></soapenv:Envelope>`

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(envelope))
	if err != nil {
		return entity.SatStateError, err.Error()
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", satAction)

	resp, err := c.client.Do(req)
	if err != nil {
		return entity.SatStateError, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.SatStateError, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	var parsed consultaResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return entity.SatStateError, "respuesta ilegible: " + err.Error()
	}
	return normalizeEstado(parsed.Estado), parsed.CodigoEstatus
}

// normalizeEstado mapea el a:Estado del SAT al sat_state interno.
func normalizeEstado(estado string) string {
	switch estado {
	case "Vigente":
		return entity.SatStateValid
	case "Cancelado":
		return entity.SatStateCancelled
	case "No Encontrado":
		return entity.SatStateNotFound
	default:
		return entity.SatStateNotDefined
	}
}
