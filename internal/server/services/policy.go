package services

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// PasswordCheck is the outcome of PasswordPolicy.Check. Reasons is empty
// when the password is acceptable.
type PasswordCheck struct {
	Reasons  []string
	Strength string
}

func (c PasswordCheck) Valid() bool { return len(c.Reasons) == 0 }

// PasswordPolicy describes what a new password must satisfy. Lengths are
// counted in characters, not bytes.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
	Denylist  []string
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength: 8,
		MaxLength: 128,
		Denylist:  []string{"password", "123456", "qwerty", "admin", "letmein"},
	}
}

type charClasses struct {
	upper, lower, digit, symbol bool
}

func classify(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case strings.ContainsRune("!@#$%^&*()_+-=[]{}|;:,.<>?", r):
			c.symbol = true
		}
	}
	return c
}

// Check returns every rule the password breaks, in a fixed order, together
// with its strength label.
func (p PasswordPolicy) Check(password string) PasswordCheck {
	var reasons []string
	n := utf8.RuneCountInString(password)
	classes := classify(password)

	if n < p.MinLength {
		reasons = append(reasons, "Password must be at least "+strconv.Itoa(p.MinLength)+" characters long")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		reasons = append(reasons, "Password must be at most "+strconv.Itoa(p.MaxLength)+" characters long")
	}
	if !classes.upper {
		reasons = append(reasons, "Password must contain at least one uppercase letter")
	}
	if !classes.lower {
		reasons = append(reasons, "Password must contain at least one lowercase letter")
	}
	if !classes.digit {
		reasons = append(reasons, "Password must contain at least one number")
	}
	lower := strings.ToLower(password)
	for _, word := range p.Denylist {
		if lower == word {
			reasons = append(reasons, "Password is too common")
			break
		}
	}

	return PasswordCheck{Reasons: reasons, Strength: Strength(password)}
}

// Strength scores a password: up to 25 points for length, 6 per character
// class present, minus 10 when it is dominated by repetition.
func Strength(password string) string {
	score := min(utf8.RuneCountInString(password), 25)

	c := classify(password)
	for _, present := range []bool{c.upper, c.lower, c.digit, c.symbol} {
		if present {
			score += 6
		}
	}
	if repetitive(password) {
		score -= 10
	}

	switch {
	case score < 20:
		return StrengthWeak
	case score < 35:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// repetitive reports whether one character makes up at least half of the
// password or the same character appears three times in a row.
func repetitive(password string) bool {
	runes := []rune(password)
	if len(runes) == 0 {
		return false
	}

	counts := make(map[rune]int, len(runes))
	run := 0
	for i, r := range runes {
		counts[r]++
		if counts[r]*2 >= len(runes) && len(runes) > 1 {
			return true
		}
		if i > 0 && runes[i-1] == r {
			run++
		} else {
			run = 1
		}
		if run >= 3 {
			return true
		}
	}
	return false
}
