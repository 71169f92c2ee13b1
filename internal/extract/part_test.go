package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePartHeader(t *testing.T) {
	tests := []struct {
		name       string
		block      string
		wantFile   bool
		wantPart   Part
		wantValues map[string]string
	}{
		{
			name:     "file part",
			block:    "Content-Disposition: form-data; name=\"file\"; filename=\"a.txt\"\r\nContent-Type: text/plain",
			wantFile: true,
			wantPart: Part{Name: "file", FileName: "a.txt", ContentType: "text/plain"},
		},
		{
			name:     "headers in any order and case",
			block:    "content-type: image/png\r\ncontent-disposition: form-data; filename=\"x.png\"; name=\"img\"",
			wantFile: true,
			wantPart: Part{Name: "img", FileName: "x.png", ContentType: "image/png"},
		},
		{
			name:     "file part without content type",
			block:    "Content-Disposition: form-data; name=\"f\"; filename=\"raw.bin\"",
			wantFile: true,
			wantPart: Part{Name: "f", FileName: "raw.bin", ContentType: "application/octet-stream"},
		},
		{
			name:     "field part",
			block:    "Content-Disposition: form-data; name=\"title\"",
			wantFile: false,
		},
		{
			name:     "filename only in another header",
			block:    "X-Note: filename=\"a.txt\"\r\nContent-Type: text/plain",
			wantFile: false,
		},
		{
			name:     "empty block",
			block:    "",
			wantFile: false,
		},
		{
			name:     "malformed disposition",
			block:    "Content-Disposition: ;;;",
			wantFile: false,
		},
		{
			name:  "folded and malformed lines",
			block: "X-Long: first\r\n  second\r\nNoColon\r\n: empty key\r\nK:V",
			wantValues: map[string]string{
				"X-Long": "first second",
				"K":      "V",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ph := parsePartHeader([]byte(tt.block))
			part, ok := ph.file()
			assert.Equal(t, tt.wantFile, ok)
			if tt.wantFile {
				assert.Equal(t, tt.wantPart, part)
			}
			for k, v := range tt.wantValues {
				assert.Equal(t, v, ph.Value(k))
			}
			if tt.wantValues != nil {
				assert.Len(t, ph.fields, len(tt.wantValues))
			}
		})
	}
}

func TestBoundaryFromContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
		expectErr   bool
	}{
		{name: "plain", contentType: "multipart/form-data; boundary=X", want: "X"},
		{name: "quoted", contentType: `multipart/form-data; boundary="abc def"`, want: "abc def"},
		{name: "browser", contentType: "multipart/form-data; boundary=----WebKitFormBoundary7MA4YWxkTrZu0gW", want: "----WebKitFormBoundary7MA4YWxkTrZu0gW"},
		{name: "extra params", contentType: "multipart/form-data; charset=utf-8; boundary=b1", want: "b1"},
		{name: "empty", contentType: "", expectErr: true},
		{name: "no boundary", contentType: "multipart/form-data", expectErr: true},
		{name: "not parseable", contentType: "multipart/form-data; boundary", expectErr: true},
		{name: "too long", contentType: "multipart/form-data; boundary=" + string(make71()), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BoundaryFromContentType(tt.contentType)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrMalformedFraming)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func make71() []byte {
	b := make([]byte, maxBoundaryLength+1)
	for i := range b {
		b[i] = 'b'
	}
	return b
}

func TestKindAndStateStrings(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "implicit_end", CompletedImplicitEnd.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
	assert.Equal(t, "awaiting_payload_start", AwaitingPayloadStart.String())
	assert.Equal(t, "streaming_payload", StreamingPayload.String())
	assert.Equal(t, "finished", Finished.String())
}
