// Package otpauth reads and writes the otpauth:// key URIs that
// authenticator apps exchange through QR codes.
//
//	otpauth://totp/<Issuer>:<Name>?secret=<BASE32>&issuer=<Issuer>
//
// Only TOTP keys are accepted. Parameters other than SHA1, 6 digits and a
// 30 second period are parsed and reported but cannot be honoured by the
// generator; see Account.Standard.
package otpauth

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
)

const (
	Scheme   = "otpauth"
	TypeTOTP = "totp"

	DefaultAlgorithm = "SHA1"
	DefaultDigits    = 6
	DefaultPeriod    = 30
)

var ErrInvalidURI = errors.New("invalid otpauth uri")
var ErrUnsupportedType = errors.New("unsupported otp type")
var ErrMissingSecret = errors.New("missing secret")

// Account is the content of a key URI.
type Account struct {
	Name      string
	Issuer    string
	Secret    string // as found in the uri, not validated
	Algorithm string
	Digits    int
	Period    uint64
}

// Parse decodes a key URI. The secret is URL-decoded once and otherwise
// left as is; validating it is up to the caller.
func Parse(uri string) (Account, error) {
	var trimmed = strings.TrimSpace(uri)
	u, err := url.Parse(trimmed)
	if err != nil {
		return Account{}, errors.Wrap(ErrInvalidURI, err.Error())
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Account{}, errors.Wrapf(ErrInvalidURI, "scheme %q", u.Scheme)
	}

	key, err := otp.NewKeyFromURL(trimmed)
	if err != nil {
		return Account{}, errors.Wrap(ErrInvalidURI, err.Error())
	}
	if !strings.EqualFold(key.Type(), TypeTOTP) {
		return Account{}, errors.Wrapf(ErrUnsupportedType, "%q", key.Type())
	}
	if strings.TrimSpace(key.Secret()) == "" {
		return Account{}, ErrMissingSecret
	}

	var account = Account{
		Name:      strings.TrimSpace(key.AccountName()),
		Issuer:    strings.TrimSpace(key.Issuer()),
		Secret:    key.Secret(),
		Algorithm: strings.ToUpper(key.Algorithm().String()),
		Digits:    key.Digits().Length(),
		Period:    key.Period(),
	}
	return account, nil
}

// Standard reports whether the account uses the parameters codes are
// generated with: SHA1, six digits, thirty seconds.
func (a Account) Standard() bool {
	var d = a.withDefaults()
	return d.Algorithm == DefaultAlgorithm && d.Digits == DefaultDigits && d.Period == DefaultPeriod
}

// StoreName is the key the account is saved under: "Issuer:Name", or
// whichever of the two is present.
func (a Account) StoreName() string {
	switch {
	case a.Issuer != "" && a.Name != "" && a.Issuer != a.Name:
		return a.Issuer + ":" + a.Name
	case a.Name != "":
		return a.Name
	default:
		return a.Issuer
	}
}

// FromStore rebuilds an account from a store entry, splitting an
// "Issuer:Name" key.
func FromStore(name, secret string) Account {
	var account = Account{Name: name, Secret: secret}
	if i := strings.Index(name, ":"); i > 0 && i < len(name)-1 {
		account.Issuer = name[:i]
		account.Name = name[i+1:]
	}
	return account.withDefaults()
}

// Format builds the key URI for an account.
func Format(a Account) string {
	a = a.withDefaults()

	var label = url.PathEscape(a.Name)
	if a.Issuer != "" {
		label = url.PathEscape(a.Issuer) + ":" + label
	}

	query := url.Values{}
	query.Set("secret", a.Secret)
	if a.Issuer != "" {
		query.Set("issuer", a.Issuer)
	}
	query.Set("algorithm", a.Algorithm)
	query.Set("digits", strconv.Itoa(a.Digits))
	query.Set("period", strconv.FormatUint(a.Period, 10))

	return Scheme + "://" + TypeTOTP + "/" + label + "?" + query.Encode()
}

func (a Account) withDefaults() Account {
	if a.Algorithm == "" {
		a.Algorithm = DefaultAlgorithm
	}
	if a.Digits == 0 {
		a.Digits = DefaultDigits
	}
	if a.Period == 0 {
		a.Period = DefaultPeriod
	}
	return a
}
