// Package must helps you do things that must not fail, typically while a
// program is starting up.
//
// Example:
//
//	var signer = must.Get(signing.NewSigner(keyID, must.Get(keys.ParsePrivateKey(pem))))
//	must.Do(logging.SetLevel(level))
package must

// Do panics if err is non-nil.
func Do(err error) {
	if err != nil {
		panic(err)
	}
}

// Get returns v, and panics if err is non-nil.
func Get[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
