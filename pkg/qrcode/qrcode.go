// Package qrcode renders invite links as PNG QR codes.
package qrcode

import (
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrFailedToEncode = errors.New("failed to generate QR code")
)

const (
	DefaultSize = 256
	MaxSize     = 1024
)

// Generate returns a PNG of content at size pixels. Sizes outside
// (0, MaxSize] fall back to DefaultSize or MaxSize.
func Generate(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	switch {
	case size <= 0:
		size = DefaultSize
	case size > MaxSize:
		size = MaxSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrFailedToEncode, err)
	}
	return png, nil
}
