package common

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

	// Usernames carry no dash so "<username>-<app>" splits at the first one.
	usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,62}$`)

	labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

const maxDomainLen = 253

// Normalize lowercases and trims an identifier the way usernames, emails,
// hostnames and application names are stored.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateName checks that an application, shard or plan name can be safely used
// as a path element, a systemd unit name and a DNS label.
func ValidateName(kind, name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %s %q must match %s", ErrInvalidArgument, kind, name, nameRe.String())
	}
	return nil
}

// ValidateUsername is ValidateName for usernames, which may not contain '-'.
func ValidateUsername(name string) error {
	if !usernameRe.MatchString(name) {
		return fmt.Errorf("%w: username %q must match %s", ErrInvalidArgument, name, usernameRe.String())
	}
	return nil
}

// ValidateDomain checks that domain is a lowercase DNS hostname: LDH labels
// of at most 63 characters joined by dots, 253 characters in total. A
// trailing dot is not accepted.
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > maxDomainLen {
		return fmt.Errorf("%w: domain %q is not a valid hostname", ErrInvalidArgument, domain)
	}
	for _, label := range strings.Split(domain, ".") {
		if !labelRe.MatchString(label) {
			return fmt.Errorf("%w: domain %q is not a valid hostname", ErrInvalidArgument, domain)
		}
	}
	return nil
}

// AppKey is the identifier shared by the proxy config file and the service
// unit of an application: "<username>-<app>".
//
// The key is unique per (username, app) only because usernames never contain
// a dash; see ValidateUsername.
func AppKey(username, app string) string {
	return username + "-" + app
}

// ServiceName returns the systemd unit name of an application.
func ServiceName(username, app string) string {
	return ServicePrefix + AppKey(username, app) + ".service"
}

// WipeByteArray overwrites b with zeros. Used for private key material once
// it has been written out.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// KeyPair is a user's deploy key material in OpenSSH encoding.
type KeyPair struct {
	Private []byte // PEM "OPENSSH PRIVATE KEY"
	Public  []byte // authorized_keys line
}
