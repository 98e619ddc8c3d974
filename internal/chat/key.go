package chat

import "strings"

// keySeparator may not appear in user ids. Ids are hex object ids or
// uuids everywhere in the app, so ":" is safe and keys stay injective.
const keySeparator = ":"

// Key derives the stable conversation key for an unordered pair.
// Key(a, b) == Key(b, a); both participants compute it independently,
// no round trip needed.
func Key(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + keySeparator + b
}

// Participants splits a conversation key back into its two user ids.
// The second return is false for a malformed key.
func Participants(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, keySeparator)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// HasParticipant reports whether the user is one side of the key.
func HasParticipant(key, userID string) bool {
	a, b, ok := Participants(key)
	return ok && (a == userID || b == userID)
}
