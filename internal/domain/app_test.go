package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckRedirectURL(t *testing.T) {
	app := App{BaseURL: "https://app.example.com"}

	cases := []struct {
		name     string
		redirect string
		ok       bool
	}{
		{"exact base", "https://app.example.com", true},
		{"deep path", "https://app.example.com/callback?state=1", true},
		{"http variant of https base", "http://app.example.com/cb", true},
		{"other host", "https://evil.example.com/cb", false},
		{"base as prefix of other host", "https://app.example.com.evil.net/cb", true},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.ok, app.CheckRedirectURL(tc.redirect))
		})
	}
}

func TestCheckRedirectURLStripsSchemeOnBase(t *testing.T) {
	app := App{BaseURL: "http://localhost:3000"}
	require.True(t, app.CheckRedirectURL("https://localhost:3000/done"))
}
