package capture

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// UnsupportedEncodingError is returned for a Content-Encoding the pipeline
// cannot decode. Storing such a body would replay compressed bytes without
// the header that describes them.
type UnsupportedEncodingError struct {
	Encoding string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("capture: unsupported content-encoding %q", e.Encoding)
}

// decodeBody undoes the codings listed in a Content-Encoding header value.
// Codings are applied in listed order, so they are removed in reverse.
func decodeBody(data []byte, contentEncoding string) ([]byte, bool, error) {
	codings := parseCodings(contentEncoding)
	decoded := false

	for i := len(codings) - 1; i >= 0; i-- {
		var (
			out []byte
			err error
		)

		switch codings[i] {
		case "identity":
			continue
		case "gzip", "x-gzip":
			out, err = gunzip(data)
		case "deflate":
			out, err = inflate(data)
		case "zstd":
			out, err = unzstd(data)
		default:
			return nil, false, &UnsupportedEncodingError{Encoding: codings[i]}
		}

		if err != nil {
			return nil, false, fmt.Errorf("capture: decode %s body: %w", codings[i], err)
		}
		data = out
		decoded = true
	}

	return data, decoded, nil
}

func parseCodings(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if c := strings.ToLower(strings.TrimSpace(part)); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// inflate accepts zlib-wrapped deflate (RFC 9110) and falls back to raw
// deflate, which some servers send instead.
func inflate(data []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		defer zr.Close()
		if out, err := io.ReadAll(zr); err == nil {
			return out, nil
		}
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

func unzstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
