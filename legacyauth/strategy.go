package legacyauth

import (
	"crypto/md5"
	"crypto/sha1"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/util"
	"github.com/jmcleod/masterkeep/storage"
)

// Strategy names one login hash format.
type Strategy int

const (
	// Current is the PHC Argon2id format written by crypto.HashPassword.
	Current Strategy = iota
	// SHA1Salted is hex(sha1(salt + password)).
	SHA1Salted
	// MD5 is unsalted hex(md5(password)).
	MD5
	// CryptSalted is a crypt(3) hash; only bcrypt variants are supported.
	CryptSalted
)

// bcrypt salts are "$2y$" + cost + "$" + 22 chars.
const cryptSaltLen = 29

// strategies is the fixed order in which legacy formats are tried.
var strategies = []Strategy{Current, SHA1Salted, MD5, CryptSalted}

func (s Strategy) String() string {
	switch s {
	case Current:
		return "current"
	case SHA1Salted:
		return "sha1-salted"
	case MD5:
		return "md5"
	case CryptSalted:
		return "crypt-salted"
	default:
		return "unknown"
	}
}

func (s Strategy) verify(u storage.User, candidate string) bool {
	switch s {
	case Current:
		ok, err := crypto.VerifyPassword(u.LoginHash, candidate)
		return err == nil && ok
	case SHA1Salted:
		sum := sha1.Sum([]byte(u.HashSalt + candidate))
		return util.EqualStrings(strings.ToLower(u.LoginHash), util.HexEncode(sum[:]))
	case MD5:
		sum := md5.Sum([]byte(candidate))
		return util.EqualStrings(strings.ToLower(u.LoginHash), util.HexEncode(sum[:]))
	case CryptSalted:
		if u.HashSalt == "" {
			return false
		}
		salt := u.HashSalt[:min(cryptSaltLen, len(u.HashSalt))]
		if !strings.HasPrefix(u.LoginHash, salt) {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(u.LoginHash), []byte(candidate)) == nil
	default:
		return false
	}
}
