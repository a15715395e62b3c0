package totp

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	reference "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// "12345678901234567890", the RFC 4226 / RFC 6238 test key
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateRFC6238Vectors(t *testing.T) {
	var generator = NewGenerator()
	// RFC 6238 appendix B SHA1 values reduced to six digits
	var tests = []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}
	for _, tc := range tests {
		code, err := generator.GenerateAt(context.Background(), rfcSecret, tc.unix)
		require.NoError(t, err)
		assert.Equal(t, tc.want, code, "t=%d", tc.unix)
	}
}

func TestGeneratePublishedSecret(t *testing.T) {
	var generator = NewGenerator()
	code, err := generator.GenerateAt(context.Background(), "JBSWY3DPEHPK3PXP", 59)
	require.NoError(t, err)
	assert.Equal(t, "996554", code)

	code, err = generator.Generate(context.Background(), "jbsw y3dp ehpk 3pxp", time.Unix(1111111109, 0))
	require.NoError(t, err)
	assert.Equal(t, "071271", code)
}

func TestHOTPRFC4226Vectors(t *testing.T) {
	var generator = NewGenerator()
	var want = []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}
	for counter, expected := range want {
		code, err := generator.HOTP(context.Background(), []byte("12345678901234567890"), uint64(counter))
		require.NoError(t, err)
		assert.Equal(t, expected, code, "counter=%d", counter)
	}
}

func TestGenerateMatchesReferenceImplementation(t *testing.T) {
	var generator = NewGenerator()
	var secrets = []string{rfcSecret, "JBSWY3DPEHPK3PXP", "ORSXG5A", "MFRGGZDFMZTWQ2LKNNWG23TPOBYXE43UOV3HO6DZPI"}
	var opts = reference.ValidateOpts{Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
	for _, secret := range secrets {
		for _, unix := range []int64{0, 59, 1700000000, 1700000029, 1700000030, 4102444800} {
			var at = time.Unix(unix, 0).UTC()
			want, err := reference.GenerateCodeCustom(secret, at, opts)
			require.NoError(t, err)
			got, err := generator.Generate(context.Background(), secret, at)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s at %d", secret, unix)
		}
	}
}

func TestGenerateIsStableWithinWindow(t *testing.T) {
	var generator = NewGenerator()
	var ctx = context.Background()
	first, err := generator.GenerateAt(ctx, rfcSecret, 1700000010)
	require.NoError(t, err)
	for unix := int64(1700000010); unix < 1700000040; unix++ {
		code, err := generator.GenerateAt(ctx, rfcSecret, unix)
		require.NoError(t, err)
		assert.Equal(t, first, code, "t=%d", unix)
	}
}

func TestGenerateChangesAtWindowBoundary(t *testing.T) {
	var generator = NewGenerator()
	var ctx = context.Background()
	for _, boundary := range []int64{30, 1111111110, 1700000010, 2000000010} {
		before, err := generator.GenerateAt(ctx, rfcSecret, boundary-1)
		require.NoError(t, err)
		after, err := generator.GenerateAt(ctx, rfcSecret, boundary)
		require.NoError(t, err)
		assert.NotEqual(t, before, after, "boundary=%d", boundary)
	}
}

func TestGenerateFormat(t *testing.T) {
	var generator = NewGenerator()
	for unix := int64(0); unix < 3000*30; unix += 30 {
		code, err := generator.GenerateAt(context.Background(), "JBSWY3DPEHPK3PXP", unix)
		require.NoError(t, err)
		require.Len(t, code, Digits)
		require.Equal(t, "", strings.Trim(code, "0123456789"))
	}
}

func TestGenerateEmptyAndMalformedSecrets(t *testing.T) {
	var generator = NewGenerator()
	var ctx = context.Background()

	empty, err := generator.GenerateAt(ctx, "", 59)
	require.NoError(t, err)
	assert.Equal(t, "812658", empty)

	invalid, err := generator.GenerateAt(ctx, "0189!!", 59)
	require.NoError(t, err)
	assert.Equal(t, empty, invalid)

	// invalid characters are dropped before decoding
	dirty, err := generator.GenerateAt(ctx, "JBSW1Y3DP", 59)
	require.NoError(t, err)
	clean, err := generator.GenerateAt(ctx, "JBSWY3DP", 59)
	require.NoError(t, err)
	assert.Equal(t, clean, dirty)
	assert.Equal(t, "409098", clean)
}

func TestGenerateCallsHasherWithCounter(t *testing.T) {
	var gotKey, gotMessage []byte
	var generator = NewGenerator()
	generator.Hasher = HasherFunc(func(ctx context.Context, key, message []byte) ([]byte, error) {
		gotKey, gotMessage = key, message
		return HMACSHA1.Sum(ctx, key, message)
	})
	_, err := generator.GenerateAt(context.Background(), "", 1111111109)
	require.NoError(t, err)
	assert.Empty(t, gotKey)
	assert.Equal(t, []byte{0, 0, 0, 0, 0x02, 0x35, 0x23, 0xec}, gotMessage)
}

func TestGeneratePropagatesHasherFailure(t *testing.T) {
	var failure = errors.New("unsupported environment")
	var generator = NewGenerator()
	generator.Hasher = HasherFunc(func(context.Context, []byte, []byte) ([]byte, error) {
		return nil, failure
	})
	code, err := generator.GenerateAt(context.Background(), rfcSecret, 59)
	assert.Empty(t, code)
	assert.True(t, errors.Is(err, ErrHashFailed))
	assert.True(t, errors.Is(err, failure))
}

func TestGenerateRejectsWrongDigestSize(t *testing.T) {
	var generator = NewGenerator()
	generator.Hasher = HasherFunc(func(context.Context, []byte, []byte) ([]byte, error) {
		return make([]byte, 10), nil
	})
	_, err := generator.GenerateAt(context.Background(), rfcSecret, 59)
	assert.True(t, errors.Is(err, ErrDigestSize))
}

func TestGenerateCancelledContext(t *testing.T) {
	var called = false
	var generator = NewGenerator()
	generator.Hasher = HasherFunc(func(context.Context, []byte, []byte) ([]byte, error) {
		called = true
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := generator.GenerateAt(ctx, rfcSecret, 59)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestGenerateConcurrent(t *testing.T) {
	var generator = NewGenerator()
	var secrets = []string{rfcSecret, "JBSWY3DPEHPK3PXP"}
	var want = map[string]string{rfcSecret: "287082", "JBSWY3DPEHPK3PXP": "996554"}
	var wg sync.WaitGroup
	var results = make(chan bool, 200)
	for i := 0; i < 100; i++ {
		for _, secret := range secrets {
			wg.Add(1)
			go func(secret string) {
				defer wg.Done()
				code, err := generator.GenerateAt(context.Background(), secret, 59)
				results <- err == nil && code == want[secret]
			}(secret)
		}
	}
	wg.Wait()
	close(results)
	for ok := range results {
		assert.True(t, ok)
	}
}

func TestCounter(t *testing.T) {
	var generator = NewGenerator()
	var tests = []struct {
		unix int64
		want uint64
	}{
		{0, 0},
		{29, 0},
		{30, 1},
		{59, 1},
		{1111111109, 37037036},
		{-1, ^uint64(0)},
		{-30, ^uint64(0)},
		{-31, ^uint64(0) - 1},
	}
	for _, tc := range tests {
		got, err := generator.Counter(tc.unix)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "t=%d", tc.unix)
	}

	generator.TimeStep = 0
	_, err := generator.Counter(59)
	assert.True(t, errors.Is(err, ErrInvalidTimeStep))
}

func TestRemaining(t *testing.T) {
	var generator = NewGenerator()
	assert.Equal(t, 30*time.Second, generator.Remaining(time.Unix(60, 0)))
	assert.Equal(t, time.Second, generator.Remaining(time.Unix(59, 0)))
	assert.Equal(t, 15*time.Second+500*time.Millisecond, generator.Remaining(time.Unix(44, int64(500*time.Millisecond))))
}

func TestVerify(t *testing.T) {
	var generator = NewGenerator()
	var ctx = context.Background()
	var now = time.Unix(1111111111, 0)

	ok, err := generator.Verify(ctx, rfcSecret, "050471", now, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// previous window
	ok, err = generator.Verify(ctx, rfcSecret, "081804", now.Add(30*time.Second), 0)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = generator.Verify(ctx, rfcSecret, "050471", now.Add(30*time.Second), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = generator.Verify(ctx, rfcSecret, "050471", now.Add(-30*time.Second), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = generator.Verify(ctx, rfcSecret, "000000", now, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"", "12345", "1234567", "12a456", " 50471"} {
		_, err = generator.Verify(ctx, rfcSecret, bad, now, 1)
		assert.True(t, errors.Is(err, ErrInvalidCode), bad)
	}
}
