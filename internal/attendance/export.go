package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"qrattend/internal/model"
)

var exportHeader = []string{"Name", "Roll No", "Status", "Marked At"}

// ExportName is the download file name for a session's attendance sheet.
func ExportName(s model.Session, ext string) string {
	return fmt.Sprintf("attendance_%s_%s_%d.%s", s.Period, s.Section, s.Semester, ext)
}

func exportRow(r model.AttendanceRecord) []string {
	return []string{r.Name, r.RollNo, r.Status, r.MarkedAt.UTC().Format(time.RFC3339)}
}

// ExportCSV writes the session's attendance as CSV.
func (s *Service) ExportCSV(ctx context.Context, sessionID string, w io.Writer) error {
	recs, err := s.repo.ListAttendance(ctx, sessionID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(exportRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportXLSX writes the session's attendance as a single-sheet workbook.
func (s *Service) ExportXLSX(ctx context.Context, sessionID string, w io.Writer) error {
	recs, err := s.repo.ListAttendance(ctx, sessionID)
	if err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Attendance"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(r)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "D", 22); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
