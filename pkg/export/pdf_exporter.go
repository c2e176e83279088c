package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// SlipData carries the fields printed on a withdrawal slip.
type SlipData struct {
	SchoolName   string
	WithdrawalID string
	StudentName  string
	CourseName   string
	PickupName   string
	Relationship string
	Method       string
	CompletedAt  string
	Reason       string
	HasSignature bool
}

// SlipExporter renders completed withdrawals into a printable PDF slip.
type SlipExporter struct{}

// NewSlipExporter constructs a slip exporter.
func NewSlipExporter() *SlipExporter {
	return &SlipExporter{}
}

// Render creates a single-page PDF slip for a completed withdrawal.
func (e *SlipExporter) Render(data SlipData) ([]byte, error) {
	if data.WithdrawalID == "" {
		return nil, fmt.Errorf("slip requires a withdrawal id")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(data.SchoolName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "STUDENT WITHDRAWAL SLIP", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Withdrawal", data.WithdrawalID},
		{"Student", data.StudentName},
		{"Course", data.CourseName},
		{"Picked up by", data.PickupName},
		{"Relationship", data.Relationship},
		{"Verification", data.Method},
		{"Completed at", data.CompletedAt},
	}
	if data.Reason != "" {
		rows = append(rows, [2]string{"Reason", data.Reason})
	}

	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(36, 7, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 7, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	if data.HasSignature {
		pdf.CellFormat(0, 6, "Signature captured digitally at completion.", "", 1, "", false, 0, "")
	} else {
		pdf.CellFormat(0, 6, "Signature: ____________________________", "", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render slip: %w", err)
	}
	return buf.Bytes(), nil
}
