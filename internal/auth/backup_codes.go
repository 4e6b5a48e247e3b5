package auth

import (
	"fmt"
	"strings"
)

const (
	// BackupCodeAlphabet excludes the ambiguous characters 0/O, 1/I and L
	BackupCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	BackupCodeLength   = 8
	// BackupCodeGroupSize is the display grouping used by FormatBackupCode
	BackupCodeGroupSize = 4
)

// GenerateBackupCodes draws count distinct codes of the given length.
// Each character is sampled uniformly from BackupCodeAlphabet; a code that
// collides with one already drawn is discarded and drawn again.
func GenerateBackupCodes(count, length int) ([]string, error) {
	if count <= 0 || length <= 0 {
		return nil, fmt.Errorf("invalid backup code request: count=%d length=%d", count, length)
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	buf := make([]byte, length)
	for len(codes) < count {
		for i := range buf {
			idx, err := randIntn(len(BackupCodeAlphabet))
			if err != nil {
				return nil, fmt.Errorf("failed to generate random index: %w", err)
			}
			buf[i] = BackupCodeAlphabet[idx]
		}
		code := string(buf)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}

// FormatBackupCode groups a code for display, e.g. "ABCD-EFGH".
// It never changes the characters of the code itself.
func FormatBackupCode(code string) string {
	if len(code) <= BackupCodeGroupSize {
		return code
	}
	var b strings.Builder
	for i := 0; i < len(code); i += BackupCodeGroupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+BackupCodeGroupSize, len(code))
		b.WriteString(code[i:end])
	}
	return b.String()
}

// IsBackupCodeShape reports whether s has the length and alphabet of a backup code
func IsBackupCodeShape(s string) bool {
	if len(s) != BackupCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(BackupCodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
