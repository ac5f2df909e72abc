package consentlist

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xmtp/allow-list-management/v1/models"
)

// ExportFileName is the download name of an exported consent list
const ExportFileName = "consent_list.csv"

// ExportContentType is the media type of an exported consent list
const ExportContentType = "text/csv"

var exportHeader = []string{"Address", "State"}

// WriteCSV writes records as "Address,State" rows separated by "\n" with no
// trailing newline. An address containing a comma, a double quote or a line
// break is quoted per RFC 4180; Validate keeps surrounding whitespace out.
func WriteCSV(w io.Writer, records []models.ConsentRecord) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{r.Address, r.Permission.Label()}); err != nil {
			return fmt.Errorf("write csv row for %s: %w", r.Address, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	// encoding/csv terminates every record; the export format does not end with one
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	_, err := w.Write(out)
	return err
}

// ExportCSV renders records in the export format.
func ExportCSV(records []models.ConsentRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
