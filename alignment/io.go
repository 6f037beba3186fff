package alignment

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DecodeTermExtraction reads a term extraction record. Unknown categories
// fail the decode.
func DecodeTermExtraction(r io.Reader) (*TermExtractionResult, error) {
	var res TermExtractionResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode term extraction: %w", err)
	}
	return &res, nil
}

// DecodeTemplateAnalysis reads a template analysis record.
func DecodeTemplateAnalysis(r io.Reader) (*TemplateAnalysisResult, error) {
	var res TemplateAnalysisResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode template analysis: %w", err)
	}
	return &res, nil
}

// ReadTermExtractionFile loads a term extraction record from path.
func ReadTermExtractionFile(path string) (*TermExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open term extraction: %w", err)
	}
	defer f.Close()
	return DecodeTermExtraction(f)
}

// ReadTemplateAnalysisFile loads a template analysis record from path.
func ReadTemplateAnalysisFile(path string) (*TemplateAnalysisResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template analysis: %w", err)
	}
	defer f.Close()
	return DecodeTemplateAnalysis(f)
}

// EncodeResult writes res as indented JSON.
func EncodeResult(w io.Writer, res *AlignmentResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// WriteResultFile writes res to path via a temporary file.
func WriteResultFile(path string, res *AlignmentResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	if err := EncodeResult(f, res); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close result file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename result file: %w", err)
	}
	return nil
}
