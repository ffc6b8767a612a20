package ticketpdf

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/signintech/gopdf"

	"ms-eventreg/internal/models"
)

// Generator renders the printable ticket document. Purely mechanical: it
// takes a detail view and a pre-rendered QR image and lays them out.
type Generator struct {
	FontPath string
}

func NewGenerator() *Generator {
	return &Generator{FontPath: "./fonts/DejaVuSans.ttf"}
}

func (g *Generator) RenderTicketDocument(details *models.TicketDetails, qrImage []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("dejavu", g.FontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("dejavu", "", 14); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	addHeader(pdf, details.EventName)

	pdf.SetY(60)
	addTicketInfo(pdf, details)

	if len(qrImage) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		addQRCode(pdf, qrImage)
	}

	pdf.SetY(260)
	addFooter(pdf)

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addHeader(pdf *gopdf.GoPdf, eventName string) {
	pdf.SetX(40)
	pdf.SetY(30)
	pdf.Cell(nil, "EVENT TICKET - "+eventName)
}

func addTicketInfo(pdf *gopdf.GoPdf, details *models.TicketDetails) {
	info := []struct {
		Label string
		Value string
	}{
		{"Reference", details.ReferenceCode},
		{"Attendee", details.AttendeeName},
		{"Email", details.AttendeeEmail},
		{"Event", details.EventName},
		{"Starts", details.EventStart.Format("2006-01-02 15:04")},
		{"Ticket", details.TicketTypeName},
	}

	pdf.SetX(40)
	for _, item := range info {
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(20)
		pdf.SetX(40)
	}

	if details.CheckedInAt != nil {
		pdf.Cell(nil, "Checked in: "+details.CheckedInAt.Format(time.RFC3339))
		pdf.Br(20)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrImage []byte) {
	img, err := png.Decode(bytes.NewReader(qrImage))
	if err != nil {
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 100, H: 100}
	if err := pdf.ImageFrom(img, 100, pdf.GetY(), rect); err != nil {
		pdf.Cell(nil, "Failed to draw QR code")
	}
}

func addFooter(pdf *gopdf.GoPdf) {
	pdf.SetX(50)
	pdf.Cell(nil, "Present this ticket at the venue entrance.")
}
