package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/go-pdf/fpdf"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/pkg/utils"
)

type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
	FormatXML Format = "xml"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts csv, pdf or xml in any case; empty means csv
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatPDF, FormatXML:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
}

func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXML:
		return "application/xml"
	}
	return "text/csv"
}

// FileName returns the download name for an export taken at now
func (f Format) FileName(now time.Time) string {
	return fmt.Sprintf("loans-%s.%s", now.Format("20060102-150405"), f)
}

var columns = []string{
	"ID", "Borrower", "Contact", "Principal", "Interest", "Actual", "Given", "Due", "Status", "Notes",
}

// Write renders loans in the given format
func Write(w io.Writer, format Format, loans []*domain.Loan, f *utils.Formatter) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, loans, f)
	case FormatPDF:
		return writePDF(w, loans, f)
	case FormatXML:
		return writeXML(w, loans, f)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func writeCSV(w io.Writer, loans []*domain.Loan, f *utils.Formatter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}

	for _, loan := range loans {
		record := []string{
			loan.ID.String(),
			loan.BorrowerName,
			loan.BorrowerContact,
			loan.PrincipalAmount.StringFixed(2),
			loan.InterestAmount.StringFixed(2),
			loan.ActualAmount.StringFixed(2),
			f.ISODate(loan.GivenDate),
			f.ISODate(loan.DueDate),
			string(loan.Status),
			loan.Notes,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeXML(w io.Writer, loans []*domain.Loan, f *utils.Formatter) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("loans")
	root.CreateAttr("currency", f.CurrencyCode())
	root.CreateAttr("count", fmt.Sprint(len(loans)))

	for _, loan := range loans {
		el := root.CreateElement("loan")
		el.CreateAttr("id", loan.ID.String())
		el.CreateAttr("status", string(loan.Status))

		el.CreateElement("borrower").SetText(loan.BorrowerName)
		if loan.BorrowerContact != "" {
			el.CreateElement("contact").SetText(loan.BorrowerContact)
		}
		el.CreateElement("principal").SetText(loan.PrincipalAmount.StringFixed(2))
		el.CreateElement("interest").SetText(loan.InterestAmount.StringFixed(2))
		el.CreateElement("actual").SetText(loan.ActualAmount.StringFixed(2))
		el.CreateElement("given_date").SetText(f.ISODate(loan.GivenDate))
		el.CreateElement("due_date").SetText(f.ISODate(loan.DueDate))
		if loan.CompletedAt != nil {
			el.CreateElement("completed_at").SetText(loan.CompletedAt.UTC().Format(time.RFC3339))
		}
		if loan.Notes != "" {
			el.CreateElement("notes").SetText(loan.Notes)
		}
	}

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

var pdfWidths = []float64{60, 40, 28, 28, 30, 28, 28, 25}

func writePDF(w io.Writer, loans []*domain.Loan, f *utils.Formatter) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Loans", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Loans (%s)", f.CurrencyCode())), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	header := []string{"Borrower", "Contact", "Principal", "Interest", "Actual", "Given", "Due", "Status"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(pdfWidths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, loan := range loans {
		row := []string{
			loan.BorrowerName,
			loan.BorrowerContact,
			f.Number(loan.PrincipalAmount),
			f.Number(loan.InterestAmount),
			f.Number(loan.ActualAmount),
			f.Date(loan.GivenDate),
			f.Date(loan.DueDate),
			string(loan.Status),
		}
		for i, cell := range row {
			align := "L"
			if i >= 2 && i <= 4 {
				align = "R"
			}
			pdf.CellFormat(pdfWidths[i], 6, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
