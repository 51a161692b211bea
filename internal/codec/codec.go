// Package codec implements the reversible text transform applied to message
// bodies before they are sent and after they are fetched.
//
// The transform is obfuscation against casual inspection of transport
// payloads. It is NOT encryption and provides no confidentiality: anyone with
// the wire text can recover the plaintext.
//
// Wire format: standard padded base64 of the percent-encoded UTF-8 text,
// percent-encoding every byte except A-Z a-z 0-9 and - _ . ! ~ * ' ( ).
// This is byte-compatible with the web client's btoa(encodeURIComponent(s)).
package codec

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const upperhex = "0123456789ABCDEF"

// Codec encodes and decodes message bodies.
type Codec struct {
	logger *zap.Logger
}

// New creates a codec. Decode diagnostics are written to logger.
func New(logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{logger: logger}
}

// Encode returns the transport-safe form of plaintext.
func (c *Codec) Encode(plaintext string) string {
	return base64.StdEncoding.EncodeToString([]byte(escape(plaintext)))
}

// Decode reverses Encode. Malformed input is returned unchanged.
func (c *Codec) Decode(wire string) string {
	text, err := decode(wire)
	if err != nil {
		c.logger.Warn("message decode failed, showing raw text",
			zap.Error(err), zap.Int("len", len(wire)))
		return wire
	}
	return text
}

func decode(wire string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		// atob tolerates missing padding.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(wire, "="))
		if err != nil {
			return "", fmt.Errorf("base64: %w", err)
		}
	}
	text, err := url.PathUnescape(string(raw))
	if err != nil {
		return "", fmt.Errorf("unescape: %w", err)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("unescape: invalid utf-8")
	}
	return text, nil
}

func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
