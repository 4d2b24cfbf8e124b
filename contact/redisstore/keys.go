package redisstore

import "strings"

const defaultPrefix = "contacts"

// keyspace builds Redis keys. The prefix is wrapped in a hash tag so every
// key of a store lands in one cluster slot and can be watched together.
type keyspace struct {
	tag string
}

func newKeyspace(prefix string) keyspace {
	p := strings.Trim(strings.TrimSpace(prefix), "{}")
	if p == "" {
		p = defaultPrefix
	}
	return keyspace{tag: "{" + p + "}"}
}

// row is a hash holding one contact.
func (k keyspace) row(userID string) string { return k.tag + ":id:" + userID }

// phone maps a formatted number to the user id owning it.
func (k keyspace) phone(number string) string { return k.tag + ":phone:" + number }

// ids is the set of all stored user ids.
func (k keyspace) ids() string { return k.tag + ":ids" }

// fromLockKeys maps contact lock keys onto the Redis keys they guard.
func (k keyspace) fromLockKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, lk := range keys {
		switch {
		case strings.HasPrefix(lk, "id:"):
			out = append(out, k.row(strings.TrimPrefix(lk, "id:")))
		case strings.HasPrefix(lk, "phone:"):
			out = append(out, k.phone(strings.TrimPrefix(lk, "phone:")))
		}
	}
	return out
}
