package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/schema"
)

// Report aggregates dataset quality metrics over the exported documents.
type Report struct {
	TotalSamples    int                `json:"total_samples"`
	TrainSamples    int                `json:"train_samples"`
	ValSamples      int                `json:"validation_samples"`
	OCRSource       string             `json:"ocr_source"`
	FieldCoverage   map[string]float64 `json:"field_coverage"`
	AvgOCRLength    int                `json:"avg_ocr_length"`
	AvgOutputLength int                `json:"avg_output_length"`
	IncompleteCount int                `json:"incomplete_count"`
	QualityScore    float64            `json:"quality_score"`
}

// BuildReport computes field coverage and length metrics across all exported
// documents. Coverage counts a field when its value is present and non-blank.
func BuildReport(docs []domain.Document, ocrSource string) *Report {
	rep := &Report{
		OCRSource:     ocrSource,
		FieldCoverage: map[string]float64{},
	}
	if len(docs) == 0 {
		return rep
	}
	rep.TotalSamples = len(docs)

	fields := schema.Fields()
	counts := make(map[string]int, len(fields))
	var ocrLenSum, ocrN, outLenSum, outN int

	for i := range docs {
		doc := &docs[i]

		var ocr *string
		if ocrSource == "datalab" {
			ocr = doc.DatalabRawOCR
		} else {
			ocr = doc.AzureRawOCR
		}
		if ocr != nil && *ocr != "" {
			ocrLenSum += len(*ocr)
			ocrN++
		}

		if len(doc.ValidatedOutput) == 0 {
			rep.IncompleteCount++
			continue
		}
		outLenSum += len(doc.ValidatedOutput)
		outN++

		var record map[string]interface{}
		if err := json.Unmarshal(doc.ValidatedOutput, &record); err != nil {
			rep.IncompleteCount++
			continue
		}
		incomplete := false
		for _, f := range fields {
			if populated(record[f]) {
				counts[f]++
			} else {
				incomplete = true
			}
		}
		if incomplete {
			rep.IncompleteCount++
		}
	}

	var coverageSum float64
	for _, f := range fields {
		c := float64(counts[f]) / float64(rep.TotalSamples)
		rep.FieldCoverage[f] = c
		coverageSum += c
	}
	rep.QualityScore = coverageSum / float64(len(fields))
	if ocrN > 0 {
		rep.AvgOCRLength = ocrLenSum / ocrN
	}
	if outN > 0 {
		rep.AvgOutputLength = outLenSum / outN
	}
	return rep
}

func populated(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return v != nil
	}
	return strings.TrimSpace(s) != ""
}

// WriteWorkbook renders the report as an XLSX file with a summary sheet and a
// per-field coverage sheet.
func (r *Report) WriteWorkbook(path string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("export.WriteWorkbook: %w", err)
	}
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total samples", r.TotalSamples},
		{"Training samples", r.TrainSamples},
		{"Validation samples", r.ValSamples},
		{"OCR source", r.OCRSource},
		{"Avg OCR length (chars)", r.AvgOCRLength},
		{"Avg output length (chars)", r.AvgOutputLength},
		{"Samples with missing fields", r.IncompleteCount},
		{"Quality score", r.QualityScore},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &row); err != nil {
			return fmt.Errorf("export.WriteWorkbook: %w", err)
		}
	}

	const coverage = "Field Coverage"
	if _, err := f.NewSheet(coverage); err != nil {
		return fmt.Errorf("export.WriteWorkbook: %w", err)
	}
	header := []interface{}{"Field", "Coverage"}
	if err := f.SetSheetRow(coverage, "A1", &header); err != nil {
		return fmt.Errorf("export.WriteWorkbook: %w", err)
	}
	for i, field := range schema.Fields() {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{field, r.FieldCoverage[field]}
		if err := f.SetSheetRow(coverage, cell, &row); err != nil {
			return fmt.Errorf("export.WriteWorkbook: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export.WriteWorkbook: saving %s: %w", path, err)
	}
	return nil
}
