// Package base32 decodes the RFC 4648 Base32 text that authenticator
// secrets are exchanged in.
//
// Decode is lenient: it upper-cases its input, drops padding and anything
// outside the alphabet, and discards trailing bits that do not fill a byte.
// DecodeStrict is the opt-in alternative for callers that want to reject
// malformed secrets instead.
package base32

import (
	"strings"

	"github.com/pkg/errors"
)

// Alphabet is the RFC 4648 Base32 symbol set in index order.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

const (
	bitsPerSymbol = 5
	padding       = '='
)

var ErrEmpty = errors.New("base32: no valid symbols")
var ErrInvalidCharacter = errors.New("base32: invalid character")

// symbol index, -1 for characters outside the alphabet
var index [256]int8

func init() {
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		index[Alphabet[i]] = int8(i)
	}
}

// Clean returns the symbols Decode would consume: the input upper-cased,
// with trailing padding and every non-alphabet character removed.
func Clean(input string) string {
	input = strings.TrimRight(strings.ToUpper(input), string(padding))
	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		if index[input[i]] >= 0 {
			b.WriteByte(input[i])
		}
	}
	return b.String()
}

// Decode converts a Base32 string into bytes. It never fails; the result
// holds floor(5*n/8) bytes where n is the number of valid symbols.
func Decode(input string) []byte {
	return unpack(Clean(input))
}

// DecodeStrict is Decode with validation. Whitespace and '-' group
// separators are allowed, padding only at the end; any other character
// outside the alphabet is an error, as is input with no symbols at all.
func DecodeStrict(input string) ([]byte, error) {
	var upper = strings.TrimRight(strings.ToUpper(input), string(padding))
	for i := 0; i < len(upper); i++ {
		var c = upper[i]
		switch {
		case index[c] >= 0:
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '-':
		default:
			return nil, errors.Wrapf(ErrInvalidCharacter, "%q at offset %d", c, i)
		}
	}
	var symbols = Clean(upper)
	if symbols == "" {
		return nil, ErrEmpty
	}
	return unpack(symbols), nil
}

// Encode returns the unpadded Base32 form of data.
func Encode(data []byte) string {
	var b strings.Builder
	b.Grow((len(data)*8 + bitsPerSymbol - 1) / bitsPerSymbol)
	var buffer uint32
	var bits uint
	for _, v := range data {
		buffer = buffer<<8 | uint32(v)
		bits += 8
		for bits >= bitsPerSymbol {
			bits -= bitsPerSymbol
			b.WriteByte(Alphabet[(buffer>>bits)&0x1f])
		}
	}
	if bits > 0 {
		b.WriteByte(Alphabet[(buffer<<(bitsPerSymbol-bits))&0x1f])
	}
	return b.String()
}

// unpack assumes symbols holds alphabet characters only
func unpack(symbols string) []byte {
	var out = make([]byte, 0, len(symbols)*bitsPerSymbol/8)
	var buffer uint32
	var bits uint
	for i := 0; i < len(symbols); i++ {
		buffer = buffer<<bitsPerSymbol | uint32(index[symbols[i]])
		bits += bitsPerSymbol
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>bits))
		}
	}
	return out
}
