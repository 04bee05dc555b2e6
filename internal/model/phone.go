package model

import (
	"errors"
	"regexp"
	"strings"
)

// ErrBadPhone is returned for numbers that cannot be put in E.164 form.
var ErrBadPhone = errors.New("invalid phone number")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// NormalizePhone returns a phone number in E.164 form. Ten-digit national Greek numbers get the
// +30 prefix.
func NormalizePhone(raw string) (string, error) {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(p, "00"):
		p = "+" + p[2:]
	case len(p) == 10 && (p[0] == '6' || p[0] == '2'):
		p = "+30" + p
	}
	if !e164.MatchString(p) {
		return "", ErrBadPhone
	}
	return p, nil
}
