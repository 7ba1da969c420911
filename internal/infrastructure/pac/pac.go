// Package pac contiene los adapters de timbrado y cancelación ante los PAC
// soportados: Finkok y Solución Factible (SOAP) y SW (REST con bearer token).
// Cada adapter es puro sobre HTTP: sin estado compartido entre llamadas.
package pac

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// pacTimeout tope común de red para firmar y cancelar.
const pacTimeout = 20 * time.Second

// newHTTPClient cliente con el timeout común de los PAC.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: pacTimeout}
}

// postSOAP envía un envelope SOAP 1.1 y devuelve el cuerpo de la respuesta
// (limitado a 4 MB; los CFDI timbrados caben de sobra).
func postSOAP(ctx context.Context, client *http.Client, url, action string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("pac: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	if action != "" {
		req.Header.Set("SOAPAction", action)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pac: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pac: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("pac: leer respuesta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pac: HTTP %d: %s", resp.StatusCode, truncate(body, 512))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// errorsOf formatea un error de adapter como lista de mensajes.
func errorsOf(format string, args ...any) []string {
	return []string{fmt.Sprintf(format, args...)}
}
