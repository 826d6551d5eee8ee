// Package extract pulls contact details out of free-text profile bios.
package extract

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9.-]+`)
	phonePattern = regexp.MustCompile(`\+?\d{1,3}[\s.-]?\(?\d{2,4}\)?[\s.-]?\d{3,4}[\s.-]?\d{3,4}`)
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// Contacts is the result of scanning a bio
type Contacts struct {
	Email      *string
	Phone      *string
	CleanedBio string
}

// FromBio returns the first email-shaped and first phone-shaped substring of
// bio, with both removed from CleanedBio. The phone is normalized to a leading
// "+" followed by digits only.
func FromBio(bio string) Contacts {
	var c Contacts
	text := bio

	if loc := emailPattern.FindStringIndex(text); loc != nil {
		email := strings.TrimRight(text[loc[0]:loc[1]], ".")
		c.Email = &email
		text = text[:loc[0]] + " " + text[loc[1]:]
	}

	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		phone, ok := normalizePhone(text[loc[0]:loc[1]])
		if !ok {
			continue
		}
		c.Phone = &phone
		text = text[:loc[0]] + " " + text[loc[1]:]
		break
	}

	c.CleanedBio = strings.Join(strings.Fields(text), " ")
	return c
}

func normalizePhone(raw string) (string, bool) {
	var b strings.Builder
	b.WriteByte('+')
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", false
	}
	return b.String(), true
}
