package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer = "Taskspace"
	// totpEnrollTTL bounds how long a generated-but-unconfirmed secret
	// stays pending on the session.
	totpEnrollTTL = 12 * time.Hour
	// pendingLoginTTL bounds the window between the password step and
	// the TOTP step of a two-factor sign-in.
	pendingLoginTTL = 10 * time.Minute

	enrollmentImageSize = 256
)

var totpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1, // standard ±1 time-step tolerance
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// generateTOTPKey produces a fresh random seed and provisioning URI
// for the given account label.
func generateTOTPKey(accountLabel string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountLabel,
		Period:      totpValidateOpts.Period,
		Digits:      totpValidateOpts.Digits,
		Algorithm:   totpValidateOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("generating TOTP key: %w", err)
	}
	return key, nil
}

// renderEnrollmentImage returns the provisioning QR code as a PNG data
// URI ready for an <img> tag.
func renderEnrollmentImage(key *otp.Key) (string, error) {
	img, err := key.Image(enrollmentImageSize, enrollmentImageSize)
	if err != nil {
		return "", fmt.Errorf("rendering enrollment image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding enrollment image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func normalizeTOTPCode(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
}

// verifyTOTPCode checks a submitted 6-digit code against a plaintext
// seed at the given instant.
func verifyTOTPCode(secret, code string, now time.Time) bool {
	code = normalizeTOTPCode(code)
	if len(code) != int(totpValidateOpts.Digits.Length()) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, totpValidateOpts)
	return err == nil && ok
}
