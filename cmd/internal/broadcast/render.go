package broadcast

import (
	"encoding/base64"
	"fmt"
	"strings"

	v1 "pairgate/shared/contracts/pairing/v1"

	qrcode "github.com/skip2/go-qrcode"
)

// CodeGroupSize is the chunk width used when displaying pairing codes.
const CodeGroupSize = 4

// Renderer turns an artifact into a display-ready payload.
type Renderer interface {
	Render(a Artifact) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(a Artifact) (string, error)

// Render calls f.
func (f RendererFunc) Render(a Artifact) (string, error) { return f(a) }

// DefaultRenderer renders QR values as PNG data URLs and codes as grouped text.
type DefaultRenderer struct {
	QRSize int
}

// Render implements Renderer.
func (r DefaultRenderer) Render(a Artifact) (string, error) {
	switch a.Kind {
	case v1.KindCode:
		return FormatCode(a.Value), nil
	case v1.KindQR:
		size := r.QRSize
		if size <= 0 {
			size = defaultQRSize
		}
		png, err := qrcode.Encode(a.Value, qrcode.Medium, size)
		if err != nil {
			return "", fmt.Errorf("render qr: %w", err)
		}
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
	default:
		return "", fmt.Errorf("render: unsupported artifact kind %q", a.Kind)
	}
}

// FormatCode groups a pairing code into CodeGroupSize chunks joined by '-'.
// The grouping is cosmetic: FormatCode("ABCD1234") == "ABCD-1234".
func FormatCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) <= CodeGroupSize {
		return code
	}
	var b strings.Builder
	for i := 0; i < len(code); i += CodeGroupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + CodeGroupSize
		if end > len(code) {
			end = len(code)
		}
		b.WriteString(code[i:end])
	}
	return b.String()
}
