package auth

import "encoding/base64"

// The credential store holds passwords under a reversible text encoding and
// compares the encoded strings for exact equality. That is the external
// contract inherited from the legacy store; it is not a hash and offers no
// protection against anyone who can read the table.

// EncodePassword applies the store's text encoding to a plain password.
func EncodePassword(plain string) string {
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// DecodePassword reverses EncodePassword.
func DecodePassword(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
