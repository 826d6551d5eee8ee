package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBioEmailAndPhone(t *testing.T) {
	c := FromBio("contact: a@b.com or +1 555-123-4567, visit site")

	require.NotNil(t, c.Email)
	require.NotNil(t, c.Phone)
	assert.Equal(t, "a@b.com", *c.Email)
	assert.Equal(t, "+15551234567", *c.Phone)
	assert.NotContains(t, c.CleanedBio, "a@b.com")
	assert.NotContains(t, c.CleanedBio, "555-123-4567")
	assert.Equal(t, "contact: or , visit site", c.CleanedBio)
}

func TestFromBio(t *testing.T) {
	tests := []struct {
		name      string
		bio       string
		wantEmail string
		wantPhone string
		wantBio   string
	}{
		{
			name:    "empty",
			bio:     "",
			wantBio: "",
		},
		{
			name:    "no contacts",
			bio:     "  photographer   based in   Lisbon ",
			wantBio: "photographer based in Lisbon",
		},
		{
			name:      "trailing dot trimmed from email",
			bio:       "bookings: studio.x+ig@mail-host.co.uk.",
			wantEmail: "studio.x+ig@mail-host.co.uk",
			wantBio:   "bookings:",
		},
		{
			name:      "dotted phone",
			bio:       "call 44.20.7946.0958 today",
			wantPhone: "+442079460958",
			wantBio:   "call today",
		},
		{
			name:    "short digit runs are not phones",
			bio:     "est 2019 / 1200 clients",
			wantBio: "est 2019 / 1200 clients",
		},
		{
			name:      "first email wins",
			bio:       "one@a.io two@b.io",
			wantEmail: "one@a.io",
			wantBio:   "two@b.io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FromBio(tt.bio)
			if tt.wantEmail == "" {
				assert.Nil(t, c.Email)
			} else {
				require.NotNil(t, c.Email)
				assert.Equal(t, tt.wantEmail, *c.Email)
			}
			if tt.wantPhone == "" {
				assert.Nil(t, c.Phone)
			} else {
				require.NotNil(t, c.Phone)
				assert.Equal(t, tt.wantPhone, *c.Phone)
			}
			assert.Equal(t, tt.wantBio, c.CleanedBio)
		})
	}
}

func TestFromBioIsDeterministic(t *testing.T) {
	bio := "mgmt: team@agency.com | +33 6 12 34 56 78"
	first := FromBio(bio)
	for i := 0; i < 5; i++ {
		again := FromBio(bio)
		assert.Equal(t, first, again)
	}
	assert.False(t, strings.Contains(first.CleanedBio, "team@agency.com"))
}
