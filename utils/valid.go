// utils/valid.go
package utils

import (
	"regexp"
	"strings"
)

// MaxBulkNumbers caps how many numbers one bulk job may carry.
const MaxBulkNumbers = 50

var (
	phoneRegex = regexp.MustCompile(`^\+\d{10,15}$`)
	otpRegex   = regexp.MustCompile(`^\d{5}$`)
)

// IsValidPhone checks the E.164-like format accepted for bulk provisioning:
// a leading + followed by 10 to 15 digits.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// IsValidOTP checks the 5-digit verification code format.
func IsValidOTP(code string) bool {
	return otpRegex.MatchString(code)
}

// ParsePhoneLines splits raw entries into valid numbers and rejected ones.
// Only the first MaxBulkNumbers non-empty entries are considered, matching
// the cap applied at list-confirmation time.
func ParsePhoneLines(lines []string) (valid []string, invalid []string) {
	seen := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if seen >= MaxBulkNumbers {
			break
		}
		seen++
		if IsValidPhone(line) {
			valid = append(valid, line)
		} else {
			invalid = append(invalid, line)
		}
	}
	return valid, invalid
}

// ParsePhoneText splits a pasted message (one number per line) and validates
// it like ParsePhoneLines.
func ParsePhoneText(text string) (valid []string, invalid []string) {
	return ParsePhoneLines(strings.Split(text, "\n"))
}
