package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// CheckInPrefix starts every check-in code.
const CheckInPrefix = "TKT-"

// NewCheckInCode returns a fresh check-in code: TKT- followed by 12
// upper-case hex characters taken from a random UUID.
func NewCheckInCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return CheckInPrefix + strings.ToUpper(hex[:12])
}

// ValidCheckInCode reports whether s has the shape NewCheckInCode produces.
func ValidCheckInCode(s string) bool {
	rest, ok := strings.CutPrefix(s, CheckInPrefix)
	if !ok || len(rest) != 12 {
		return false
	}
	for _, r := range rest {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// CheckInQR renders code as a PNG QR image of size x size pixels.
func CheckInQR(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
