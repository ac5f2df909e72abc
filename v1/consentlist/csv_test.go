package consentlist

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmtp/allow-list-management/v1/models"
)

func TestExportCSV_RoundTripWithReconcile(t *testing.T) {
	out, err := Reconcile([]models.ConsentRecord{
		rec("0xabc", models.PermissionAllowed),
		rec("0xdef", models.PermissionDenied),
	})
	require.NoError(t, err)

	data, err := ExportCSV(out)
	require.NoError(t, err)

	assert.Equal(t, "Address,State\n0xabc,Allowed\n0xdef,Denied", string(data))
}

func TestExportCSV_Empty(t *testing.T) {
	data, err := ExportCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "Address,State", string(data))
}

func TestWriteCSV_Unknown(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []models.ConsentRecord{rec("0x1", models.PermissionUnknown)})
	require.NoError(t, err)
	assert.Equal(t, "Address,State\n0x1,Unknown", buf.String())
}

func TestWriteCSV_QuotesOnlyReservedCharacters(t *testing.T) {
	data, err := ExportCSV([]models.ConsentRecord{
		rec("0xabc", models.PermissionAllowed),
		rec("a,b", models.PermissionDenied),
	})
	require.NoError(t, err)
	assert.Equal(t, "Address,State\n0xabc,Allowed\n\"a,b\",Denied", string(data))
}
