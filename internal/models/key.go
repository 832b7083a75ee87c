package models

import (
	"errors"
	"strings"
)

const (
	keySeparator = '_'
	keyEscape    = '\\'
)

var ErrInvalidRecipientKey = errors.New("invalid recipient key")

// RecipientKey builds the addressable key for a name within a team. Separator
// and escape characters inside either part are backslash-escaped so that keys
// never collide; plain parts produce "name_team".
func RecipientKey(name, team string) string {
	var b strings.Builder
	b.Grow(len(name) + len(team) + 1)
	writeKeyPart(&b, name)
	b.WriteByte(keySeparator)
	writeKeyPart(&b, team)
	return b.String()
}

func writeKeyPart(b *strings.Builder, part string) {
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c == keySeparator || c == keyEscape {
			b.WriteByte(keyEscape)
		}
		b.WriteByte(c)
	}
}

// ParseRecipientKey splits a key built by RecipientKey back into its parts.
func ParseRecipientKey(key string) (name, team string, err error) {
	var parts [2]strings.Builder
	idx := 0
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == keyEscape:
			if i+1 >= len(key) {
				return "", "", ErrInvalidRecipientKey
			}
			i++
			parts[idx].WriteByte(key[i])
		case c == keySeparator && idx == 0:
			idx = 1
		case c == keySeparator:
			return "", "", ErrInvalidRecipientKey
		default:
			parts[idx].WriteByte(c)
		}
	}
	if idx != 1 || parts[0].Len() == 0 {
		return "", "", ErrInvalidRecipientKey
	}
	return parts[0].String(), parts[1].String(), nil
}

// KeyTeam returns the team part of a recipient key, or "" for malformed keys.
func KeyTeam(key string) string {
	_, team, err := ParseRecipientKey(key)
	if err != nil {
		return ""
	}
	return team
}

// KeyName returns the display part of a recipient key, falling back to the
// raw key when it cannot be parsed.
func KeyName(key string) string {
	name, _, err := ParseRecipientKey(key)
	if err != nil {
		return key
	}
	return name
}
