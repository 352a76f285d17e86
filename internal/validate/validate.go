// Package validate holds the pure input predicates used by account operations.
package validate

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

// emailPattern accepts a dot-atom or quoted local part (no Unicode spaces), and either a bracketed
// IPv4 literal or dotted labels ending in an alphabetic TLD of two or more letters.
var emailPattern = regexp.MustCompile(
	`^(([^<>()\[\]\\.,;:\s\p{Z}\x{FEFF}@"]+(\.[^<>()\[\]\\.,;:\s\p{Z}\x{FEFF}@"]+)*)|(".+"))` +
		`@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`,
)

var (
	hasDigit = regexp.MustCompile(`[0-9]`)
	hasLower = regexp.MustCompile(`[a-z]`)
	hasUpper = regexp.MustCompile(`[A-Z]`)
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// EmailRules is the rule set behind Email.
var EmailRules = []validation.Rule{
	validation.Required,
	validation.Match(emailPattern).Error("must be a valid email address"),
}

// PasswordRules is the rule set behind Password.
var PasswordRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(MinPasswordLength, 0),
	validation.Match(hasDigit).Error("must contain a digit"),
	validation.Match(hasLower).Error("must contain a lowercase letter"),
	validation.Match(hasUpper).Error("must contain an uppercase letter"),
}

// Email reports whether s looks like a conventional local@domain address.
func Email(s string) bool {
	return validation.Validate(s, EmailRules...) == nil
}

// Password reports whether s is at least six characters long and mixes a
// digit, a lowercase letter and an uppercase letter.
func Password(s string) bool {
	return validation.Validate(s, PasswordRules...) == nil
}
