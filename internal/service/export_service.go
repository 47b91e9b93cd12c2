package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/export"
	"ddtcorpus/internal/port"
)

// ExportResult describes one completed dataset export.
type ExportResult struct {
	TrainSamples   int            `json:"train_samples"`
	ValSamples     int            `json:"validation_samples"`
	SkippedSamples int            `json:"skipped_samples"`
	TrainPath      string         `json:"train_path"`
	ValPath        string         `json:"validation_path"`
	ReportPath     string         `json:"report_path"`
	WorkbookPath   string         `json:"workbook_path"`
	Report         *export.Report `json:"report"`
}

// ExportService assembles the fine-tuning dataset from validated documents.
type ExportService interface {
	Export(ctx context.Context) (*ExportResult, error)
}

type exportService struct {
	docs port.DocumentRepository
	cfg  config.ExportConfig
}

// NewExportService creates a new ExportService implementation.
func NewExportService(docs port.DocumentRepository, cfg config.ExportConfig) ExportService {
	return &exportService{docs: docs, cfg: cfg}
}

// Export writes train.jsonl and validation.jsonl in Alpaca format plus a
// quality report. The split is deterministic for a fixed seed and is persisted
// per document so later exports and audits see the same assignment.
func (s *exportService) Export(ctx context.Context) (*ExportResult, error) {
	docs, err := s.docs.ListValidated(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.ErrNoValidatedDocuments
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("exportService.Export: creating %s: %w", s.cfg.OutputDir, err)
	}

	train, validation := export.Split(docs, s.cfg.TrainSplitRatio, s.cfg.SplitSeed)

	result := &ExportResult{
		TrainPath:    filepath.Join(s.cfg.OutputDir, "train.jsonl"),
		ValPath:      filepath.Join(s.cfg.OutputDir, "validation.jsonl"),
		ReportPath:   filepath.Join(s.cfg.OutputDir, "quality_report.json"),
		WorkbookPath: filepath.Join(s.cfg.OutputDir, "quality_report.xlsx"),
	}

	result.TrainSamples, err = s.writeSplit(ctx, train, domain.SplitTrain, result.TrainPath)
	if err != nil {
		return nil, err
	}
	result.ValSamples, err = s.writeSplit(ctx, validation, domain.SplitValidation, result.ValPath)
	if err != nil {
		return nil, err
	}
	result.SkippedSamples = len(docs) - result.TrainSamples - result.ValSamples

	report := export.BuildReport(docs, s.cfg.OCRSource)
	report.TrainSamples = result.TrainSamples
	report.ValSamples = result.ValSamples
	result.Report = report

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("exportService.Export: %w", err)
	}
	if err := os.WriteFile(result.ReportPath, reportJSON, 0o644); err != nil {
		return nil, fmt.Errorf("exportService.Export: writing report: %w", err)
	}
	if err := report.WriteWorkbook(result.WorkbookPath); err != nil {
		return nil, err
	}

	log.Printf("exportService.Export: %d train, %d validation, %d skipped",
		result.TrainSamples, result.ValSamples, result.SkippedSamples)
	return result, nil
}

// writeSplit formats one half of the split, persists the assignment, and
// writes the JSONL file. Documents without usable OCR or validated output are
// skipped, not failed.
func (s *exportService) writeSplit(ctx context.Context, docs []domain.Document, split domain.DatasetSplit, path string) (int, error) {
	records := make([]export.Record, 0, len(docs))
	for i := range docs {
		rec, err := export.FormatRecord(&docs[i], s.cfg.OCRSource)
		if err != nil {
			return 0, err
		}
		if rec == nil {
			log.Printf("exportService.writeSplit: skipping %s: no usable OCR or output", docs[i].ID)
			continue
		}
		if err := s.docs.UpdateDatasetSplit(ctx, docs[i].ID, split); err != nil {
			return 0, err
		}
		records = append(records, *rec)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("exportService.writeSplit: creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := export.WriteJSONL(f, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
