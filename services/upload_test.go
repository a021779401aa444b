package services

import (
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMockFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("document", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(10 * 1024 * 1024)
	require.NoError(t, err)
	return form.File["document"][0]
}

func TestValidatePDFUpload(t *testing.T) {
	pdf := append([]byte("%PDF-1.4\n"), make([]byte, 100)...)

	tests := []struct {
		name     string
		filename string
		document []byte
		max      int64
		wantErr  bool
	}{
		{name: "valid", filename: "processo.pdf", document: pdf, max: 1024},
		{name: "upper case extension", filename: "PROCESSO.PDF", document: pdf, max: 1024},
		{name: "no limit", filename: "processo.pdf", document: pdf},
		{name: "empty", filename: "processo.pdf", document: nil, max: 1024, wantErr: true},
		{name: "too large", filename: "processo.pdf", document: pdf, max: 50, wantErr: true},
		{name: "wrong extension", filename: "processo.docx", document: pdf, max: 1024, wantErr: true},
		{name: "no magic", filename: "processo.pdf", document: []byte("PK\x03\x04"), max: 1024, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePDFUpload(tt.filename, tt.document, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestReadUpload(t *testing.T) {
	content := append([]byte("%PDF-1.4\n"), make([]byte, 100)...)

	t.Run("within limit", func(t *testing.T) {
		data, err := ReadUpload(createMockFileHeader(t, "processo.pdf", content), 1024)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := ReadUpload(createMockFileHeader(t, "processo.pdf", content), 16)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, CodeInvalidInput, ErrorCode(err))
	})
}

func TestDocumentDigest(t *testing.T) {
	a := DocumentDigest([]byte("%PDF-1.4 a"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, DocumentDigest([]byte("%PDF-1.4 a")))
	assert.NotEqual(t, a, DocumentDigest([]byte("%PDF-1.4 b")))
}
