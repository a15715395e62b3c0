// Package totp generates and checks RFC 6238 time-based one-time passwords:
// HMAC-SHA1 over a 30 second counter, dynamically truncated to 6 digits.
package totp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
	"time"

	"bitbucket.org/jbester/binaryio"
	"github.com/pkg/errors"

	"github.com/jbester/otpkeeper/pkg/base32"
)

const (
	// Digits is the fixed width of a generated code.
	Digits = 6
	// DefaultTimeStep is the RFC 6238 window length.
	DefaultTimeStep = 30 * time.Second

	modulus    = 1000000
	digestSize = sha1.Size
)

var ErrHashFailed = errors.New("keyed hash failed")
var ErrDigestSize = errors.New("digest must be 20 bytes")
var ErrInvalidCode = errors.New("code must be 6 digits")
var ErrInvalidTimeStep = errors.New("time step must be at least one second")

// Hasher computes a keyed hash of message. Implementations may block; they
// return either the full digest or an error.
type Hasher interface {
	Sum(ctx context.Context, key, message []byte) ([]byte, error)
}

// HashError carries the failure returned by a Hasher. It matches
// ErrHashFailed under errors.Is.
type HashError struct {
	Err error
}

func (e *HashError) Error() string        { return ErrHashFailed.Error() + ": " + e.Err.Error() }
func (e *HashError) Unwrap() error        { return e.Err }
func (e *HashError) Is(target error) bool { return target == ErrHashFailed }

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(ctx context.Context, key, message []byte) ([]byte, error)

func (f HasherFunc) Sum(ctx context.Context, key, message []byte) ([]byte, error) {
	return f(ctx, key, message)
}

// HMACSHA1 is the default Hasher.
var HMACSHA1 Hasher = HasherFunc(func(_ context.Context, key, message []byte) ([]byte, error) {
	h := hmac.New(sha1.New, key)
	h.Write(message)
	return h.Sum(nil), nil
})

// Generator produces codes for Base32 secrets. The zero value is not
// usable; construct one with NewGenerator. A Generator holds no per-call
// state and may be shared between goroutines.
type Generator struct {
	Hasher
	TimeStep time.Duration
}

func NewGenerator() Generator {
	return Generator{Hasher: HMACSHA1, TimeStep: DefaultTimeStep}
}

func (generator Generator) step() (int64, error) {
	var seconds = int64(generator.TimeStep / time.Second)
	if seconds < 1 {
		return 0, ErrInvalidTimeStep
	}
	return seconds, nil
}

// Counter returns floor(unixSeconds / step) for the generator's step.
func (generator Generator) Counter(unixSeconds int64) (uint64, error) {
	step, err := generator.step()
	if err != nil {
		return 0, err
	}
	var counter = unixSeconds / step
	if unixSeconds%step != 0 && unixSeconds < 0 {
		counter--
	}
	return uint64(counter), nil
}

// Remaining is the time left before the code for now expires.
func (generator Generator) Remaining(now time.Time) time.Duration {
	var step = generator.TimeStep
	if step < time.Second {
		return 0
	}
	var elapsed = time.Duration(now.UnixNano()) % step
	if elapsed < 0 {
		elapsed += step
	}
	return step - elapsed
}

// HOTP computes the RFC 4226 code for key at counter.
func (generator Generator) HOTP(ctx context.Context, key []byte, counter uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var writer = binaryio.BigEndianBufferWriter()
	writer.WriteUint64(counter)
	digest, err := generator.Hasher.Sum(ctx, key, writer.Bytes())
	if err != nil {
		return "", &HashError{Err: err}
	}
	token, err := truncate(digest)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", Digits, token), nil
}

// GenerateAt returns the code for secret at the given Unix time. Malformed
// secrets are not an error: they decode to a shorter, possibly empty, key.
func (generator Generator) GenerateAt(ctx context.Context, secret string, unixSeconds int64) (string, error) {
	counter, err := generator.Counter(unixSeconds)
	if err != nil {
		return "", err
	}
	return generator.HOTP(ctx, base32.Decode(secret), counter)
}

func (generator Generator) Generate(ctx context.Context, secret string, now time.Time) (string, error) {
	return generator.GenerateAt(ctx, secret, now.Unix())
}

func (generator Generator) Now(ctx context.Context, secret string) (string, error) {
	return generator.Generate(ctx, secret, time.Now())
}

// Verify reports whether code matches the window containing now or one of
// the skew windows on either side of it.
func (generator Generator) Verify(ctx context.Context, secret, code string, now time.Time, skew uint) (bool, error) {
	if !isCode(code) {
		return false, ErrInvalidCode
	}
	counter, err := generator.Counter(now.Unix())
	if err != nil {
		return false, err
	}
	var key = base32.Decode(secret)
	var matched = 0
	for delta := -int64(skew); delta <= int64(skew); delta++ {
		candidate, err := generator.HOTP(ctx, key, counter+uint64(delta))
		if err != nil {
			return false, err
		}
		matched |= subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
	}
	return matched == 1, nil
}

// dynamic truncation, RFC 4226 section 5.3
func truncate(digest []byte) (uint32, error) {
	if len(digest) != digestSize {
		return 0, errors.Wrapf(ErrDigestSize, "got %d bytes", len(digest))
	}
	var offset = digest[digestSize-1] & 0x0f
	var reader = binaryio.BigEndianBufferReader(digest[offset : offset+4])
	token, err := reader.ReadUint32()
	if err != nil {
		return 0, err
	}
	token &= 0x7fffffff
	return token % modulus, nil
}

func isCode(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
