package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const AllowedMimeType = "application/pdf"

// ValidatePDFUpload checks a source document is a PDF within maxBytes
func ValidatePDFUpload(filename string, document []byte, maxBytes int64) error {
	if len(document) == 0 {
		return newDocketError(ErrInvalidInput, "document", "document is empty")
	}
	if maxBytes > 0 && int64(len(document)) > maxBytes {
		return newDocketError(ErrInvalidInput, "document", "document exceeds %d MB", maxBytes/(1024*1024))
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" {
		return newDocketError(ErrInvalidInput, "document", "only PDF files are accepted")
	}

	// PDF files start with %PDF
	if !bytes.HasPrefix(document, []byte("%PDF")) {
		return newDocketError(ErrInvalidInput, "document", "file is not a valid PDF")
	}
	return nil
}

// ReadUpload reads a multipart file, refusing anything over maxBytes
func ReadUpload(fileHeader *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		return nil, newDocketError(ErrInvalidInput, "document", "document exceeds %d MB", maxBytes/(1024*1024))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if maxBytes > 0 {
		reader = io.LimitReader(file, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, newDocketError(ErrInvalidInput, "document", "document exceeds %d MB", maxBytes/(1024*1024))
	}
	return data, nil
}

// DocumentDigest is the hex SHA-256 of a source document. It lets a reviewer
// tell whether two extractions came from the same file.
func DocumentDigest(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}
