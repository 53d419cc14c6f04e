package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"slotwatch/internal/metrics"
	"slotwatch/internal/models"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{
	"Заявка", "Текущий слот", "Запрошенное окно", "Статус", "Сообщение",
	"Водитель", "Контейнер", "Добавлена",
}

// handleExport renders the current queue as an .xlsx workbook. With
// ?save=1 the file is also kept in the export directory.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, err := s.queue.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	f, err := buildWorkbook(items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("queue_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))

	if r.URL.Query().Get("save") == "1" {
		if err := os.MkdirAll(s.exportPath, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		path := filepath.Join(s.exportPath, fileName)
		if err := f.SaveAs(path); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info().Str("file_path", path).Msg("queue exported to file")
		writeJSON(w, http.StatusOK, map[string]string{"file": path})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("failed to stream export")
	}
}

func buildWorkbook(items []models.RetryItem) (*excelize.File, error) {
	f := excelize.NewFile()

	sheetName := "Очередь"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for col, title := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheetName, cell, title)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for row, item := range items {
		window := item.StartSlot
		if item.EndSlot != "" {
			window = fmt.Sprintf("%s - %s", item.StartSlot, item.EndSlot)
		}
		values := []any{
			item.TvAppID,
			item.CurrentSlot,
			window,
			item.Status,
			item.StatusMessage,
			item.DriverName,
			item.ContainerNumber,
			item.Timestamp.Format("02.01.2006 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "C", 25)
	_ = f.SetColWidth(sheetName, "D", "H", 20)
	_ = f.DeleteSheet("Sheet1")

	return f, nil
}
