package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	commands "shuttle-gateway/internal/commands/domain"
	fleet "shuttle-gateway/internal/fleet/domain"
)

// FleetReport is one rendered snapshot of the gateway's activity.
type FleetReport struct {
	GeneratedAt time.Time
	From        time.Time
	To          time.Time
	States      []fleet.State
	Commands    []commands.Command
}

// BuildFleetPDF renders a fleet activity report as PDF.
func BuildFleetPDF(report FleetReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Shuttle Fleet Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s .. %s", report.From.Format(time.RFC3339), report.To.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Shuttle", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Battery", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Location", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Last Seen", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, state := range report.States {
		pdf.CellFormat(35, 6, state.ShuttleID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, string(state.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, state.BatteryLevel, "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, state.Location, "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, state.LastSeen.Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(55, 6, "External ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Source", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Verb", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Shuttle", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Created", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, cmd := range report.Commands {
		pdf.CellFormat(55, 6, cmd.ExternalID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(cmd.Source), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, string(cmd.Verb), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, cmd.ShuttleID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, cmd.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, cmd.CreatedAt.Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildFleetXLSX renders a fleet activity report as XLSX.
func BuildFleetXLSX(report FleetReport) ([]byte, error) {
	f := excelize.NewFile()
	fleetSheet := "fleet"
	commandsSheet := "commands"
	f.SetSheetName("Sheet1", fleetSheet)
	f.NewSheet(commandsSheet)

	_ = f.SetCellValue(fleetSheet, "A1", "Shuttle Fleet Report")
	_ = f.SetCellValue(fleetSheet, "A2", "Window")
	_ = f.SetCellValue(fleetSheet, "B2", report.From.Format(time.RFC3339))
	_ = f.SetCellValue(fleetSheet, "C2", report.To.Format(time.RFC3339))
	_ = f.SetCellValue(fleetSheet, "A3", "Generated")
	_ = f.SetCellValue(fleetSheet, "B3", report.GeneratedAt.Format(time.RFC3339))

	_ = f.SetCellValue(fleetSheet, "A5", "Shuttle")
	_ = f.SetCellValue(fleetSheet, "B5", "Status")
	_ = f.SetCellValue(fleetSheet, "C5", "Battery")
	_ = f.SetCellValue(fleetSheet, "D5", "Location")
	_ = f.SetCellValue(fleetSheet, "E5", "Pallet Count")
	_ = f.SetCellValue(fleetSheet, "F5", "Error Code")
	_ = f.SetCellValue(fleetSheet, "G5", "Last Seen")
	for i, state := range report.States {
		row := i + 6
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("A%d", row), state.ShuttleID)
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("B%d", row), string(state.Status))
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("C%d", row), state.BatteryLevel)
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("D%d", row), state.Location)
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("E%d", row), state.PalletCount)
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("F%d", row), state.ErrorCode)
		_ = f.SetCellValue(fleetSheet, fmt.Sprintf("G%d", row), state.LastSeen.Format(time.RFC3339))
	}

	_ = f.SetCellValue(commandsSheet, "A1", "External ID")
	_ = f.SetCellValue(commandsSheet, "B1", "Source")
	_ = f.SetCellValue(commandsSheet, "C1", "Kind")
	_ = f.SetCellValue(commandsSheet, "D1", "Verb")
	_ = f.SetCellValue(commandsSheet, "E1", "Shuttle")
	_ = f.SetCellValue(commandsSheet, "F1", "Status")
	_ = f.SetCellValue(commandsSheet, "G1", "Created")
	_ = f.SetCellValue(commandsSheet, "H1", "Done")
	_ = f.SetCellValue(commandsSheet, "I1", "Error")
	for i, cmd := range report.Commands {
		row := i + 2
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("A%d", row), cmd.ExternalID)
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("B%d", row), string(cmd.Source))
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("C%d", row), string(cmd.Kind))
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("D%d", row), string(cmd.Verb))
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("E%d", row), cmd.ShuttleID)
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("F%d", row), cmd.Status)
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("G%d", row), cmd.CreatedAt.Format(time.RFC3339))
		if !cmd.DoneAt.IsZero() {
			_ = f.SetCellValue(commandsSheet, fmt.Sprintf("H%d", row), cmd.DoneAt.Format(time.RFC3339))
		}
		_ = f.SetCellValue(commandsSheet, fmt.Sprintf("I%d", row), cmd.Error)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
