package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// Extractor pulls plain text out of stored PDFs and classifies failures.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, filePath string) domain.TextExtraction {
	raw, err := readObject(ctx, e.storage, filePath)
	if err != nil {
		return domain.TextExtraction{
			Error:     "Failed to download file from storage: " + err.Error(),
			ErrorType: domain.ErrorTypeStorage,
		}
	}

	text, pageCount, err := parse(raw)
	if err != nil {
		slog.Warn("pdf_parse_failed", "path", filePath, "error", err)
		if isPasswordError(err) {
			return domain.TextExtraction{
				PageCount: pageCount,
				Error:     "PDF is password-protected and cannot be parsed",
				ErrorType: domain.ErrorTypePasswordProtected,
			}
		}
		return domain.TextExtraction{
			PageCount: pageCount,
			Error:     "Failed to parse PDF: " + err.Error(),
			ErrorType: domain.ErrorTypeCorrupted,
		}
	}

	text = strings.TrimSpace(text)
	length := utf8.RuneCountInString(text)
	if length < domain.MinTextLength {
		message := "No text could be extracted (likely a scanned PDF)"
		if length > 0 {
			message = fmt.Sprintf("Only %d characters extracted (likely a scanned PDF)", length)
		}
		return domain.TextExtraction{
			Text:      text,
			PageCount: pageCount,
			Error:     message,
			ErrorType: domain.ErrorTypeNoText,
		}
	}

	return domain.TextExtraction{
		Text:      text,
		PageCount: pageCount,
		Success:   true,
	}
}

// parse recovers parser panics on malformed input and reports them as errors.
func parse(raw []byte) (text string, pageCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, err
	}
	pageCount = reader.NumPage()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", pageCount, err
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", pageCount, err
	}
	return string(out), pageCount, nil
}

func readObject(ctx context.Context, storage ports.ObjectStorage, key string) ([]byte, error) {
	reader, err := storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}

func isPasswordError(err error) bool {
	return errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(strings.ToLower(err.Error()), "password")
}
