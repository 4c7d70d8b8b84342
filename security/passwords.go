package security

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything after the 72nd byte.
const maxPasswordBytes = 72

var (
	BcryptCost = bcrypt.DefaultCost

	// ActivePasswordPolicy is applied wherever a credential is set.
	ActivePasswordPolicy = DefaultPasswordPolicy()
)

func HashPassword(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword never fails loudly: a malformed digest simply does not match.
func VerifyPassword(plain, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

var dummyDigests sync.Map

// DummyDigest is a digest of the current BcryptCost that no caller knows the
// password of. Verifying against it costs as much as a real verification.
func DummyDigest() string {
	if digest, found := dummyDigests.Load(BcryptCost); found {
		return digest.(string)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte("gatekeeper-dummy-credential"), BcryptCost)
	if err != nil {
		panic(err)
	}
	actual, _ := dummyDigests.LoadOrStore(BcryptCost, string(digest))
	return actual.(string)
}

type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true, RequireSpecial: true}
}

var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"password", "password1", "password123", "passw0rd", "p@ssw0rd", "p@ssword1", "password1!", "password123!",
		"12345678", "123456789", "1234567890", "87654321", "11111111", "00000000",
		"qwerty123", "qwertyuiop", "qwerty123!", "1q2w3e4r", "1qaz2wsx", "zaq12wsx", "asdfghjkl",
		"letmein", "letmein1", "letmein1!", "welcome1", "welcome1!", "welcome123", "admin123", "admin123!",
		"iloveyou", "iloveyou1", "abc12345", "abcd1234", "abcd1234!", "sunshine1", "monkey123", "dragon123",
		"football1", "baseball1", "changeme", "changeme1", "changeme1!", "trustno1", "secret123",
	} {
		commonPasswords[p] = struct{}{}
	}
}

// Validate reports whether plain satisfies the policy, and why not when it does not.
func (p PasswordPolicy) Validate(plain string) (bool, string) {
	minLength := p.MinLength
	if minLength <= 0 {
		minLength = 8
	}
	if len([]rune(plain)) < minLength {
		return false, "Password must be at least " + strconv.Itoa(minLength) + " characters long"
	}
	if len(plain) > maxPasswordBytes {
		return false, "Password must be at most " + strconv.Itoa(maxPasswordBytes) + " bytes long"
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if p.RequireUpper && !hasUpper {
		return false, "Password must contain at least one uppercase letter"
	}
	if p.RequireLower && !hasLower {
		return false, "Password must contain at least one lowercase letter"
	}
	if p.RequireDigit && !hasDigit {
		return false, "Password must contain at least one digit"
	}
	if p.RequireSpecial && !hasSpecial {
		return false, "Password must contain at least one special character"
	}

	if _, found := commonPasswords[strings.ToLower(plain)]; found || isTrivialPattern(plain) {
		return false, "Password is too common"
	}
	return true, ""
}

// isTrivialPattern matches a single repeated character or a strictly
// ascending or descending run such as "abcdefgh" or "98765432".
func isTrivialPattern(plain string) bool {
	runes := []rune(strings.ToLower(plain))
	if len(runes) < 2 {
		return true
	}
	same, asc, desc := true, true, true
	for i := 1; i < len(runes); i++ {
		d := runes[i] - runes[i-1]
		same = same && d == 0
		asc = asc && d == 1
		desc = desc && d == -1
	}
	return same || asc || desc
}
