// Package identifier classifies the ways a person can be referred to across
// the federation: a local username, a local numeric id, an account handle
// (user@domain) or an actor URL.
package identifier

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	userIDPattern  = regexp.MustCompile(`^\d+$`)
	accountPattern = regexp.MustCompile(`^([a-z0-9_+]([a-z0-9_+.]*[a-z0-9_+])?)@([a-z0-9]+([\-.][a-z0-9]+)*\.[a-z]{2,6})$`)
	urlPattern     = regexp.MustCompile(`^https?://(www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)`)
)

// Identifier is one of Username, UserID, Account or ActorURL.
type Identifier interface {
	String() string
	identifier()
}

type Username string

type UserID uint64

// Account is a handle in user@domain form.
type Account string

// ActorURL is the canonical URL of an actor document.
type ActorURL string

func (u Username) String() string { return string(u) }
func (u UserID) String() string   { return strconv.FormatUint(uint64(u), 10) }
func (a Account) String() string  { return string(a) }
func (a ActorURL) String() string { return string(a) }

func (Username) identifier() {}
func (UserID) identifier()   {}
func (Account) identifier()  {}
func (ActorURL) identifier() {}

// Domain is everything after the last @.
func (a Account) Domain() string {
	s := string(a)
	return s[strings.LastIndex(s, "@")+1:]
}

// LocalPart is everything before the last @.
func (a Account) LocalPart() string {
	s := string(a)
	if i := strings.LastIndex(s, "@"); i >= 0 {
		return s[:i]
	}
	return s
}

// WithoutFragment drops a trailing #fragment, turning a key id such as
// https://example.com/users/alice#main-key into the actor URL serving it.
func (a ActorURL) WithoutFragment() ActorURL {
	s := string(a)
	if i := strings.Index(s, "#"); i >= 0 {
		return ActorURL(s[:i])
	}
	return a
}

// Classify maps any input to exactly one Identifier. Rules are tried in
// order: numeric id, account handle, URL, and username as the fallback.
// Digit strings too large for a uint64 fall through to the later rules.
func Classify(input string) Identifier {
	if userIDPattern.MatchString(input) {
		if id, err := strconv.ParseUint(input, 10, 64); err == nil {
			return UserID(id)
		}
	}

	if accountPattern.MatchString(input) {
		return Account(input)
	}

	if urlPattern.MatchString(input) {
		return ActorURL(input)
	}

	return Username(input)
}
