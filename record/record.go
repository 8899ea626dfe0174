// Package record encodes users and posts as positional, line-delimited text.
//
// Each attribute occupies exactly one line in a fixed order. There is no
// escaping: line breaks in free text are replaced with spaces before
// encoding, so a value containing them does not survive a round trip.
// Decoding never fails. Missing trailing lines take their defaults and extra
// lines are ignored, which keeps files written by older code readable.
//
// User file (users/<handle>.txt):
//
//	display
//	bio
//	password hash
//	avatar filename
//	verified (0/1)
//	admin (0/1)
//
// Post file (posts/<id>.txt):
//
//	author handle
//	date
//	content
//	likes
//	retweets
package record

import (
	"strconv"
	"strings"

	app "github.com/etitcombe/tweeter"
)

var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

// StripLineBreaks replaces every CR and LF with a space.
func StripLineBreaks(s string) string {
	return lineBreaks.Replace(s)
}

// EncodeUser renders u as six lines. The handle is not stored; it is the
// filename stem.
func EncodeUser(u app.User) []byte {
	return join(
		u.Display,
		u.Bio,
		u.PasswordHash,
		u.Avatar,
		flag(u.Verified),
		flag(u.Admin),
	)
}

// DecodeUser parses a user file. Missing lines default to: display = handle,
// bio = app.DefaultBio, empty hash and avatar, not verified, not admin.
func DecodeUser(handle string, data []byte) app.User {
	l := split(data)
	return app.User{
		Handle:       handle,
		Display:      l.at(0, handle),
		Bio:          l.at(1, app.DefaultBio),
		PasswordHash: l.at(2, ""),
		Avatar:       l.at(3, ""),
		Verified:     l.at(4, "0") == "1",
		Admin:        l.at(5, "0") == "1",
	}
}

// EncodePost renders p as five lines. The id is not stored; it is the
// filename stem.
func EncodePost(p app.Post) []byte {
	return join(
		p.Author,
		p.Date,
		p.Content,
		strconv.Itoa(p.Likes),
		strconv.Itoa(p.Retweets),
	)
}

// DecodePost parses a post file. Missing or malformed counters read as zero
// and a missing author reads as app.GuestHandle.
func DecodePost(id string, data []byte) app.Post {
	l := split(data)
	return app.Post{
		ID:       id,
		Author:   l.at(0, app.GuestHandle),
		Date:     l.at(1, ""),
		Content:  l.at(2, ""),
		Likes:    counter(l.at(3, "0")),
		Retweets: counter(l.at(4, "0")),
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func counter(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func join(fields ...string) []byte {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(StripLineBreaks(f))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

type lines []string

func split(data []byte) lines {
	s := string(data)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	l := strings.Split(s, "\n")
	for i := range l {
		l[i] = strings.TrimSuffix(l[i], "\r")
	}
	return l
}

func (l lines) at(i int, def string) string {
	if i < len(l) {
		return l[i]
	}
	return def
}
