package auth

import (
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// argon2idParams are the OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashSecret returns an Argon2id hash of secret in PHC format:
// $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashSecret(secret string) (string, error) {
	return argon2id.CreateHash(secret, argon2idParams)
}

// IsSecretHash reports whether h looks like an Argon2id PHC string.
func IsSecretHash(h string) bool {
	if !strings.HasPrefix(h, "$argon2id$") {
		return false
	}
	_, _, _, err := argon2id.DecodeHash(h)
	return err == nil
}

// VerifySecret compares secret against an Argon2id hash in constant time.
// Returns ErrUnknownHashType for anything but Argon2id.
func VerifySecret(secret, hash string) (bool, error) {
	if !strings.HasPrefix(hash, "$argon2id$") {
		return false, ErrUnknownHashType
	}
	return safeArgon2idCompare(secret, hash)
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery: the argon2 library panics on hashes with invalid parameters
// (t=0, p=0).
func safeArgon2idCompare(secret, hash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(secret, hash)
}
