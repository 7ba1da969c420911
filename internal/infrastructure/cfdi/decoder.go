package cfdi

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	domcfdi "github.com/jhoicas/cfdi-api/internal/domain/cfdi"
)

// Decoder parsea un CFDI timbrado al registro normalizado que consumen el
// orquestador y el poller SAT.
type Decoder struct{}

// NewDecoder construye el decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Decode implementa invoicing.Decoder.
func (d *Decoder) Decode(cfdiXML []byte) (*invoicing.DecodedCfdi, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(cfdiXML); err != nil {
		return nil, fmt.Errorf("decode: parsear CFDI: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Comprobante" {
		return nil, fmt.Errorf("decode: el documento no es un Comprobante")
	}

	out := &invoicing.DecodedCfdi{
		Serie:     selectAttr(root, "Serie"),
		Folio:     selectAttr(root, "Folio"),
		Moneda:    selectAttr(root, "Moneda"),
		SelloCFDI: selectAttr(root, "Sello"),
	}

	var err error
	if out.Subtotal, err = parseAmount(selectAttr(root, "SubTotal")); err != nil {
		return nil, fmt.Errorf("decode: SubTotal: %w", err)
	}
	if out.Total, err = parseAmount(selectAttr(root, "Total")); err != nil {
		return nil, fmt.Errorf("decode: Total: %w", err)
	}

	if emisor := findByTag(root, "Emisor"); emisor != nil {
		out.EmisorRFC = selectAttr(emisor, "Rfc")
		out.RegimenFiscal = selectAttr(emisor, "RegimenFiscal")
	}
	if receptor := findByTag(root, "Receptor"); receptor != nil {
		out.ReceptorRFC = selectAttr(receptor, "Rfc")
	}

	if conceptos := findByTag(root, "Conceptos"); conceptos != nil {
		for _, c := range conceptos.ChildElements() {
			if c.Tag != "Concepto" {
				continue
			}
			out.NumConceptos++
			if out.ObjetoImpReceptor == "" {
				out.ObjetoImpReceptor = selectAttr(c, "ObjetoImp")
			}
		}
	}

	if rel := findByTag(root, "CfdiRelacionados"); rel != nil {
		origin := &domcfdi.Origin{RelationCode: selectAttr(rel, "TipoRelacion")}
		for _, child := range rel.ChildElements() {
			if child.Tag == "CfdiRelacionado" {
				origin.UUIDs = append(origin.UUIDs, selectAttr(child, "UUID"))
			}
		}
		out.Origin = origin
	}

	if tfd := findByTag(root, "TimbreFiscalDigital"); tfd != nil {
		out.UUID = selectAttr(tfd, "UUID")
		out.FechaTimbrado = selectAttr(tfd, "FechaTimbrado")
		cadena, err := BuildCadena(cfdiXML, SelectorTFD)
		if err != nil {
			return nil, err
		}
		out.CadenaTFD = cadena
	}

	return out, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
