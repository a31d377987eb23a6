package docsvc

import (
	"bytes"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core/learning"
)

const titleWrapAt = 50

// CertificateRenderer renders certificates as landscape letter PDFs.
type CertificateRenderer struct {
	appName string
}

var _ learning.DocumentRenderer = (*CertificateRenderer)(nil)

func NewCertificateRenderer(appName string) *CertificateRenderer {
	return &CertificateRenderer{appName: appName}
}

func (r *CertificateRenderer) RenderCertificate(data learning.CertificateData) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "Letter", "")
	pdf.SetTitle("Certificate "+data.CertificateID, true)
	pdf.SetAuthor(r.appName, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	w, h := pdf.GetPageSize()

	// double border
	pdf.SetDrawColor(26, 54, 93)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(15, 15, w-30, h-30, "D")

	center := func(y float64, family, style string, size float64, text string) {
		pdf.SetFont(family, style, size)
		pdf.SetXY(20, y)
		pdf.CellFormat(w-40, size*0.5, tr(text), "", 0, "C", false, 0, "")
	}

	pdf.SetTextColor(26, 54, 93)
	center(35, "Helvetica", "B", 34, "CERTIFICATE OF COMPLETION")
	pdf.SetTextColor(60, 60, 60)
	center(62, "Helvetica", "", 14, "This is to certify that")
	pdf.SetTextColor(0, 0, 0)
	center(78, "Times", "BI", 30, data.StudentName)
	pdf.SetTextColor(60, 60, 60)
	center(98, "Helvetica", "", 14, "has successfully completed the course")

	pdf.SetTextColor(26, 54, 93)
	y := 112.0
	for _, line := range wrapTitle(data.CourseTitle, titleWrapAt) {
		center(y, "Helvetica", "B", 20, line)
		y += 11
	}

	pdf.SetTextColor(60, 60, 60)
	center(y+8, "Helvetica", "", 12, "Issued on "+data.IssuedAt.Format("January 2, 2006"))
	center(y+16, "Helvetica", "", 10, "Certificate ID: "+data.CertificateID)

	// instructor signature line
	pdf.SetLineWidth(0.3)
	pdf.Line(w/2-40, h-45, w/2+40, h-45)
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(w/2-40, h-43)
	pdf.CellFormat(80, 6, tr(data.InstructorName), "", 0, "C", false, 0, "")
	pdf.SetXY(w/2-40, h-37)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(80, 5, "Instructor", "", 0, "C", false, 0, "")

	// footer
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(20, h-25)
	footer := r.appName
	if data.SiteURL != "" {
		footer += " - verify at " + data.SiteURL + "/v1/certificates/" + data.CertificateID + "/verify"
	}
	pdf.CellFormat(w-40, 5, tr(footer), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "writing pdf")
	}
	return buf.Bytes(), nil
}

// wrapTitle splits titles longer than max characters over two lines.
func wrapTitle(title string, max int) []string {
	if len(title) <= max {
		return []string{title}
	}
	words := strings.Fields(title)
	var first, second []string
	length := 0
	for _, word := range words {
		if len(second) == 0 && (length == 0 || length+1+len(word) <= max) {
			first = append(first, word)
			length += len(word) + 1
			continue
		}
		second = append(second, word)
	}
	if len(second) == 0 {
		return []string{title}
	}
	return []string{strings.Join(first, " "), strings.Join(second, " ")}
}
