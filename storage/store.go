package storage

// Store is a minimal string key/value store. The library uses two instances:
// an ephemeral one for transient sign-in session state and a durable one for
// long-lived tokens. Absence of a key means "not set" and is reported through
// the boolean, not an error.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}
