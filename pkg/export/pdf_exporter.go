package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/ozpath/ozpath-api/internal/models"
)

// PDFExporter renders the authorization form into a printable document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderAuthorizationForm produces the signed authority-to-represent document.
func (e *PDFExporter) RenderAuthorizationForm(form *models.AuthorizationForm, app *models.Application) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "AUTHORITY TO REPRESENT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Form %s", form.FormRef), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	e.field(pdf, "Application reference", app.ApplicationRef)
	e.field(pdf, "Applicant", form.ApplicantID)
	e.field(pdf, "Registered representative", form.RepresentativeID)
	e.field(pdf, "Valid until", form.ExpiresAt.Format("2 January 2006"))
	pdf.Ln(10)

	e.signatureBlock(pdf, "Applicant", form.ApplicantSignature())
	pdf.Ln(6)
	e.signatureBlock(pdf, "Representative", form.RepresentativeSignature())

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render authorization form: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) field(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 8, label, "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 8, value, "", 1, "", false, 0, "")
}

func (e *PDFExporter) signatureBlock(pdf *gofpdf.Fpdf, party string, sig models.Signature) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s signature", party), "B", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	if !sig.Set() {
		pdf.CellFormat(0, 7, "Not signed", "", 1, "", false, 0, "")
		return
	}
	pdf.CellFormat(0, 7, fmt.Sprintf("Signed by %s on %s", *sig.SignedBy, sig.SignedAt.UTC().Format(time.RFC1123)), "", 1, "", false, 0, "")
	if sig.Attestation != nil {
		pdf.MultiCell(0, 6, *sig.Attestation, "", "", false)
	}
}
