package report

import (
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/submission"
)

const (
	ExportFilename    = "Abia_Education_Data.xlsx"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet       = "Submissions"
	headerFill        = "1F6F43"
)

var exportHeader = []interface{}{
	"ID", "School Name", "District", "Enrollment", "Teachers", "Submitted By",
	"Email", "Facilities", "Photo", "Submitted At", "Status",
}

// Spreadsheet is a rendered export.
type Spreadsheet struct {
	Filename string
	Content  []byte
	Rows     int
}

type ExportEmailData struct {
	Name string
	Rows int
}

// ExportMessage returns an email delivering sheet to recipient as an attachment.
func ExportMessage(recipient mail.Address, sheet Spreadsheet) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{recipient},
		Subject:      "Your data export",
		TemplateName: "data_export",
		TemplateData: ExportEmailData{Name: recipient.Name, Rows: sheet.Rows},
		Attachments: []core.Attachment{
			{Content: sheet.Content, ContentType: ExportContentType, Filename: sheet.Filename},
		},
	}
}

// RenderSpreadsheet writes subs to a single-sheet workbook with a bold, colored header row.
func RenderSpreadsheet(subs []submission.Submission) (Spreadsheet, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return Spreadsheet{}, errors.Wrap(err, "naming sheet")
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return Spreadsheet{}, errors.Wrap(err, "creating header style")
	}
	if err = f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return Spreadsheet{}, errors.Wrap(err, "writing header")
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeader))
	if err = f.SetCellStyle(exportSheet, "A1", lastCol+"1", style); err != nil {
		return Spreadsheet{}, errors.Wrap(err, "styling header")
	}
	_ = f.SetColWidth(exportSheet, "B", "B", 32)
	_ = f.SetColWidth(exportSheet, "C", "C", 20)
	_ = f.SetColWidth(exportSheet, "F", "H", 28)
	_ = f.SetColWidth(exportSheet, "J", "J", 22)

	for i, s := range subs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			s.ID,
			s.SchoolName,
			s.District,
			s.EnrollmentTotal,
			s.TeachersTotal,
			s.SubmittedBy,
			s.Email,
			strings.Join(s.Facilities, ", "),
			s.PhotoPath,
			s.SubmittedAt.UTC().Format(time.RFC3339),
			string(s.Status()),
		}
		if err = f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return Spreadsheet{}, errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Spreadsheet{}, errors.Wrap(err, "writing workbook")
	}
	return Spreadsheet{Filename: ExportFilename, Content: buf.Bytes(), Rows: len(subs)}, nil
}
