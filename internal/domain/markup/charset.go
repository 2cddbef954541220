package markup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

var ErrCharset = errors.New("unsupported charset")

// DecodeUTF8 returns data as UTF-8. Input that is not valid UTF-8 is
// transcoded from the charset chardet detects, windows-1252 when detection
// fails.
func DecodeUTF8(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	name := "windows-1252"
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res != nil {
		name = strings.ToLower(res.Charset)
	}

	r, err := charset.NewReaderLabel(name, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCharset, name)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

// ImportBytes is Import for a raw request body in any charset chardet knows
func (im *Importer) ImportBytes(s *surface.Surface, parent tree.NodeID, data []byte) ([]tree.NodeID, error) {
	fragment, err := DecodeUTF8(data)
	if err != nil {
		return nil, err
	}
	return im.Import(s, parent, fragment)
}
