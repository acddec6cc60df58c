// Package numbering generates human-facing document numbers of the form
// PREFIX-YYYYMMDD-XXXXX.
package numbering

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

const (
	PrefixQuote   = "QT"
	PrefixPolicy  = "POL"
	PrefixPayment = "PAY"

	suffixSpace = 100000
)

var numberPattern = regexp.MustCompile(`^([A-Z]+)-(\d{8})-(\d{5})$`)

// Generate returns a new number dated with the UTC day of at.
func Generate(prefix string, at time.Time) string {
	return Format(prefix, at, rand.IntN(suffixSpace))
}

// Format renders a number with an explicit suffix, wrapped into five digits.
func Format(prefix string, at time.Time, suffix int) string {
	if suffix < 0 {
		suffix = -suffix
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, at.UTC().Format("20060102"), suffix%suffixSpace)
}

// Valid reports whether number is well formed and carries prefix.
func Valid(number, prefix string) bool {
	m := numberPattern.FindStringSubmatch(number)
	if m == nil || m[1] != prefix {
		return false
	}
	_, err := time.Parse("20060102", m[2])
	return err == nil
}
