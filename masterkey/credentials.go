package masterkey

import (
	"context"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/util"
	"github.com/jmcleod/masterkeep/storage"
	"github.com/jmcleod/masterkeep/vault"
)

var credentialAAD = crypto.AAD("masterkeep:credential:v1")

// SealCredential seals plaintext under the master password in key. Every
// call runs a full Argon2id derivation with params over a fresh salt.
func SealCredential(key *Key, plaintext []byte, params crypto.KDFParams) ([]byte, error) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	var sealed []byte
	err = key.use(func(secret []byte) error {
		v, err := vault.SealWith(string(secret), salt, plaintext,
			vault.WithKDFParams(params),
			vault.WithAAD(credentialAAD),
		)
		if err != nil {
			return err
		}
		sealed, err = v.Marshal()
		return err
	})
	return sealed, err
}

func OpenCredential(key *Key, sealed []byte) ([]byte, error) {
	v, err := vault.Unmarshal(sealed)
	if err != nil {
		return nil, err
	}
	var plaintext []byte
	err = key.use(func(secret []byte) error {
		var err error
		plaintext, err = v.OpenWith(string(secret), vault.WithAAD(credentialAAD))
		return err
	})
	return plaintext, err
}

// StoreReencrypter returns a ReencryptFunc that moves every credential in cs
// from the old master password to the new one in a single transaction.
//
// Each credential costs two Argon2id derivations, one with the parameters it
// was sealed with and one with params, and all of them run while the store
// holds its write transaction. Rotation time and the time writers are
// blocked therefore grow linearly with the number of credentials; choose
// params with that in mind.
func StoreReencrypter(cs storage.CredentialStore, params crypto.KDFParams) ReencryptFunc {
	return func(ctx context.Context, oldKey, newKey *Key) error {
		_, err := cs.ReencryptAll(ctx, func(sealed []byte) ([]byte, error) {
			plaintext, err := OpenCredential(oldKey, sealed)
			if err != nil {
				return nil, err
			}
			defer util.WipeBytes(plaintext)
			return SealCredential(newKey, plaintext, params)
		})
		return err
	}
}
