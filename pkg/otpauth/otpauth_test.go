package otpauth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	var tests = []struct {
		name string
		uri  string
		want Account
	}{
		{
			name: "issuer prefix and parameter",
			uri:  "otpauth://totp/Example:alice@google.com?secret=JBSWY3DPEHPK3PXP&issuer=Example",
			want: Account{Name: "alice@google.com", Issuer: "Example", Secret: "JBSWY3DPEHPK3PXP", Algorithm: "SHA1", Digits: 6, Period: 30},
		},
		{
			name: "label only",
			uri:  "otpauth://totp/alice?secret=JBSWY3DPEHPK3PXP",
			want: Account{Name: "alice", Secret: "JBSWY3DPEHPK3PXP", Algorithm: "SHA1", Digits: 6, Period: 30},
		},
		{
			name: "escaped label and secret",
			uri:  "otpauth://totp/ACME%20Co:john.doe%40email.com?secret=HXDM%20VJEC&issuer=ACME%20Co",
			want: Account{Name: "john.doe@email.com", Issuer: "ACME Co", Secret: "HXDM VJEC", Algorithm: "SHA1", Digits: 6, Period: 30},
		},
		{
			name: "non standard parameters",
			uri:  "otpauth://TOTP/Corp:bob?secret=GEZDGNBV&algorithm=SHA256&digits=8&period=60",
			want: Account{Name: "bob", Issuer: "Corp", Secret: "GEZDGNBV", Algorithm: "SHA256", Digits: 8, Period: 60},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.uri)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	var tests = []struct {
		uri  string
		want error
	}{
		{"https://example.com/?secret=JBSWY3DP", ErrInvalidURI},
		{"JBSWY3DP", ErrInvalidURI},
		{"otpauth://totp/%zz?secret=JBSWY3DP", ErrInvalidURI},
		{"otpauth://hotp/alice?secret=JBSWY3DP&counter=1", ErrUnsupportedType},
		{"otpauth://totp/alice?issuer=Example", ErrMissingSecret},
		{"otpauth://totp/alice?secret=%20", ErrMissingSecret},
	}
	for _, tc := range tests {
		_, err := Parse(tc.uri)
		assert.True(t, errors.Is(err, tc.want), "%s: %v", tc.uri, err)
	}
}

func TestStandard(t *testing.T) {
	assert.True(t, Account{}.Standard())
	assert.True(t, Account{Algorithm: "SHA1", Digits: 6, Period: 30}.Standard())
	assert.False(t, Account{Digits: 8}.Standard())
	assert.False(t, Account{Period: 60}.Standard())
	assert.False(t, Account{Algorithm: "SHA512"}.Standard())
}

func TestStoreName(t *testing.T) {
	assert.Equal(t, "Example:alice", Account{Issuer: "Example", Name: "alice"}.StoreName())
	assert.Equal(t, "alice", Account{Name: "alice"}.StoreName())
	assert.Equal(t, "Example", Account{Issuer: "Example"}.StoreName())
	assert.Equal(t, "Example", Account{Issuer: "Example", Name: "Example"}.StoreName())
}

func TestFormatRoundTrip(t *testing.T) {
	var account = FromStore("ACME Co:john.doe@email.com", "JBSWY3DPEHPK3PXP")
	assert.Equal(t, "ACME Co", account.Issuer)
	assert.Equal(t, "john.doe@email.com", account.Name)

	var uri = Format(account)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/ACME%20Co:john.doe@email.com?"), uri)
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, uri, "issuer=ACME+Co")

	parsed, err := Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, account, parsed)
	assert.Equal(t, "ACME Co:john.doe@email.com", parsed.StoreName())
}

func TestFormatWithoutIssuer(t *testing.T) {
	var uri = Format(FromStore("alice", "JBSWY3DP"))
	assert.Equal(t, "otpauth://totp/alice?algorithm=SHA1&digits=6&period=30&secret=JBSWY3DP", uri)
}

func TestQRString(t *testing.T) {
	art, err := QRString(Format(FromStore("alice", "JBSWY3DP")))
	require.NoError(t, err)
	assert.NotEmpty(t, art)
	assert.Contains(t, art, "\n")

	_, err = QRString("  ")
	assert.True(t, errors.Is(err, ErrEmptyContent))
}

func TestWriteQRFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "alice.png")
	require.NoError(t, WriteQRFile(Format(FromStore("alice", "JBSWY3DP")), path, 0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))

	assert.True(t, errors.Is(WriteQRFile("", path, 0), ErrEmptyContent))
}
