package otpauth

import (
	"strings"

	"github.com/pkg/errors"
	skipqrcode "github.com/skip2/go-qrcode"
)

var ErrEmptyContent = errors.New("content cannot be empty")

// defaultSize is the PNG size in pixels used when no size is specified
const defaultSize = 256

// QRString renders content as a QR code made of block characters, for
// display in a terminal.
func QRString(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	q, err := skipqrcode.New(content, skipqrcode.Medium)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate QR code")
	}
	return q.ToSmallString(false), nil
}

// WriteQRFile writes content as a PNG QR code to path.
func WriteQRFile(content, path string, size int) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if size <= 0 {
		size = defaultSize
	}
	if err := skipqrcode.WriteFile(content, skipqrcode.Medium, size, path); err != nil {
		return errors.Wrap(err, "failed to generate QR code")
	}
	return nil
}
