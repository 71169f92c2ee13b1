package extract

import (
	"bytes"
	"fmt"
	"mime"
	"net/textproto"
)

const maxBoundaryLength = 70

// Part describes the file part whose payload a session extracts.
type Part struct {
	Name        string
	FileName    string
	ContentType string
}

type partHeader struct {
	fields map[string]string
	last   string
}

func (ph *partHeader) Set(key, value string) {
	key = textproto.CanonicalMIMEHeaderKey(key)
	ph.fields[key] = value
	ph.last = key
}

func (ph *partHeader) Value(key string) string {
	return ph.fields[textproto.CanonicalMIMEHeaderKey(key)]
}

// parsePartHeader reads a header block made of CRLF separated "key: value"
// lines. Lines without a colon are ignored and folded lines are appended to
// the previous value.
func parsePartHeader(block []byte) *partHeader {
	ph := &partHeader{fields: make(map[string]string, 4)}

	for len(block) > 0 {
		lineEnd := bytes.Index(block, crlf)
		if lineEnd == -1 {
			lineEnd = len(block)
		}
		line := block[:lineEnd]

		switch {
		case len(line) == 0:
		case (line[0] == ' ' || line[0] == '\t') && ph.last != "":
			ph.fields[ph.last] += " " + string(bytes.TrimSpace(line))
		default:
			colonIdx := bytes.IndexByte(line, ':')
			if colonIdx > 0 {
				key := bytes.TrimSpace(line[:colonIdx])
				value := bytes.TrimSpace(line[colonIdx+1:])
				ph.Set(string(key), string(value))
			}
		}

		if lineEnd == len(block) {
			break
		}
		block = block[lineEnd+2:]
	}

	return ph
}

// file reports whether the part carries a file, which is the case when its
// Content-Disposition has a filename parameter.
func (ph *partHeader) file() (Part, bool) {
	disposition := ph.Value("Content-Disposition")
	if disposition == "" {
		return Part{}, false
	}

	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return Part{}, false
	}

	fileName, ok := params["filename"]
	if !ok {
		return Part{}, false
	}

	contentType := ph.Value("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return Part{
		Name:        params["name"],
		FileName:    fileName,
		ContentType: contentType,
	}, true
}

func BoundaryFromContentType(contentType string) (string, error) {
	if contentType == "" {
		return "", fmt.Errorf("%w: missing content type", ErrMalformedFraming)
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedFraming, err)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrMalformedFraming)
	}
	if len(boundary) > maxBoundaryLength {
		return "", fmt.Errorf("%w: boundary longer than %d bytes", ErrMalformedFraming, maxBoundaryLength)
	}

	return boundary, nil
}
