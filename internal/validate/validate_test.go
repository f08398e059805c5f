package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhone(t *testing.T) {
	cases := []struct {
		in         string
		normalized string
		ok         bool
	}{
		{"+27821234567", "+27821234567", true},
		{"+14155550100", "+14155550100", true},
		{"+27 82 123 4567", "+27821234567", true},
		{"+0821234567", "+0821234567", true},
		{"0821234567", "0821234567", false},
		{"+1", "+1", false},
		{"+2782123456789012345", "+2782123456789012345", false},
		{"", "", false},
	}
	for _, tc := range cases {
		normalized, ok := Phone(tc.in)
		assert.Equal(t, tc.normalized, normalized, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestEmailDomain(t *testing.T) {
	domain, err := EmailDomain("bob@Acme.COM")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", domain)

	_, err = EmailDomain("not-an-email")
	assert.Error(t, err)
}

func TestRedirectURL(t *testing.T) {
	allowed := []string{"app.acme.com"}

	assert.NoError(t, RedirectURL("https://app.acme.com/home", allowed))
	assert.NoError(t, RedirectURL("http://APP.ACME.COM/x", allowed))
	assert.Error(t, RedirectURL("https://evil.com/", allowed))
	assert.Error(t, RedirectURL("/relative/path", allowed))
	assert.Error(t, RedirectURL("javascript:alert(1)", allowed))
	assert.Error(t, RedirectURL("https://app.acme.com/home", nil))
}
