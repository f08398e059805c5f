package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+\d{7,15}$`)

// Phone normalizes s by stripping spaces and reports whether the result is an
// E.164 phone number. Providers commonly format the claim with grouping
// spaces, so those are not an error.
func Phone(s string) (string, bool) {
	normalized := strings.ReplaceAll(s, " ", "")
	return normalized, phonePattern.MatchString(normalized)
}

// Email reports whether s parses as a plain address (no display name).
func Email(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// EmailDomain extracts the lowercased domain part of an email address.
func EmailDomain(email string) (string, error) {
	if !Email(email) {
		return "", fmt.Errorf("invalid email address")
	}
	at := strings.LastIndex(email, "@")
	return strings.ToLower(email[at+1:]), nil
}

// RedirectURL checks that raw is an absolute http(s) URL whose host is in the
// allow list. An empty allow list rejects everything; relative URLs are never
// accepted as flow redirect targets.
func RedirectURL(raw string, allowedHosts []string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse redirect url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("redirect url must be absolute http(s), got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("redirect url has no host")
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		if host == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("redirect host %q is not allowed", host)
}
