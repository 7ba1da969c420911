package cfdi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
)

func TestParseOrigin_CodigoYUUIDs(t *testing.T) {
	o, err := cfdi.ParseOrigin("04|11111111-aaaa-bbbb-cccc-000000000001,11111111-aaaa-bbbb-cccc-000000000002")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "04", o.RelationCode)
	assert.Len(t, o.UUIDs, 2)
}

// Solo los códigos 01..07 producen una relación; fuera de rango se ignora el
// campo sin error (origen no aprovechable).
func TestParseOrigin_CodigoFueraDeRango(t *testing.T) {
	o, err := cfdi.ParseOrigin("08|11111111-aaaa-bbbb-cccc-000000000001")
	require.NoError(t, err)
	assert.Nil(t, o)

	o, err = cfdi.ParseOrigin("00|11111111-aaaa-bbbb-cccc-000000000001")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestParseOrigin_Vacio(t *testing.T) {
	o, err := cfdi.ParseOrigin("")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestParseOrigin_Malformado(t *testing.T) {
	_, err := cfdi.ParseOrigin("sin-pipe")
	assert.Error(t, err)
}

func TestOrigin_EncodeRoundTrip(t *testing.T) {
	raw := "01|11111111-aaaa-bbbb-cccc-000000000009"
	o, err := cfdi.ParseOrigin(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, o.Encode())
}
