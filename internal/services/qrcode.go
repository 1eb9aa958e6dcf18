package services

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const pngDataPrefix = "data:image/png;base64,"

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// NormalizeQRCode turns whatever a gateway returned into something an <img>
// can show. Data URLs and http links pass through; bare base64 PNG gets the
// data-URL prefix; anything else is treated as the pairing payload and
// rendered to a PNG.
func NormalizeQRCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return "", fmt.Errorf("empty qr code")
	case strings.HasPrefix(code, "data:image"), strings.HasPrefix(code, "http://"), strings.HasPrefix(code, "https://"):
		return code, nil
	case looksLikePNG(code):
		return pngDataPrefix + code, nil
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	return pngDataPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func looksLikePNG(s string) bool {
	if len(s) < 64 || !base64Pattern.MatchString(s) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(raw) > 8 && string(raw[1:4]) == "PNG"
}
