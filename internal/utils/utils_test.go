package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckInCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := NewCheckInCode()
		require.True(t, ValidCheckInCode(code), code)
		require.Len(t, code, 16)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestValidCheckInCode(t *testing.T) {
	assert.True(t, ValidCheckInCode("TKT-0123456789AB"))
	for _, s := range []string{
		"",
		"TKT-",
		"TKT-0123456789ab",
		"TKT-0123456789ABC",
		"TIX-0123456789AB",
		"TKT-0123456789AG",
	} {
		assert.False(t, ValidCheckInCode(s), s)
	}
}

func TestCheckInQRIsPNG(t *testing.T) {
	png, err := CheckInQR("TKT-0123456789AB", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))
}

func TestNewAccessToken(t *testing.T) {
	before := time.Now().UTC()
	tok, err := NewAccessToken("s3cret", 7, "CUSTOMER", 30*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(30*time.Minute), tok.Exp, 5*time.Second)

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.EqualValues(t, 7, claims["sub"])
	assert.Equal(t, "CUSTOMER", claims["role"])

	_, err = jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil })
	assert.Error(t, err)

	assert.Equal(t, Issuer, claims["iss"])

	_, err = NewAccessToken("", 7, "CUSTOMER", time.Minute)
	assert.Error(t, err)
	_, err = NewAccessToken("s3cret", 0, "CUSTOMER", time.Minute)
	assert.Error(t, err)
}
