// Package crypt implements the Standard Security Handler of ISO 32000-1
// §7.6: password-based key derivation and verification for revisions 2
// through 4, and the RC4 / AES-128-CBC stream ciphers it builds on.
// Revision 5/6 (AES-256, PDF 2.0) are out of scope.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"errors"
)

// padding is the fixed 32-byte string XOR-ed/truncated onto a user-supplied
// password before hashing (Algorithm 2, step a).
var padding = [32]byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Params is the subset of the Encrypt dictionary needed to derive and
// verify the file's encryption key.
type Params struct {
	R               int // revision: 2, 3, or 4
	KeyLengthBytes  int // 5 for R2, 5-16 for R3/R4
	O               [32]byte
	U               [32]byte
	P               int32
	ID0             []byte // first element of the trailer's ID array
	EncryptMetadata bool   // false only possible for R >= 4
}

func padPassword(password []byte) [32]byte {
	var out [32]byte
	n := copy(out[:], password)
	copy(out[n:], padding[:32-n])
	return out
}

// FileKey runs Algorithm 2 (ISO 32000-1 §7.6.3.3), deriving the RC4/AES
// file encryption key from a candidate password.
func FileKey(password []byte, p Params) []byte {
	padded := padPassword(password)

	buf := append([]byte(nil), padded[:]...)
	buf = append(buf, p.O[:]...)
	buf = append(buf, byte(p.P), byte(p.P>>8), byte(p.P>>16), byte(p.P>>24))
	buf = append(buf, p.ID0...)
	if p.R >= 4 && !p.EncryptMetadata {
		buf = append(buf, 0xff, 0xff, 0xff, 0xff)
	}

	sum := md5.Sum(buf)
	keyLen := p.KeyLengthBytes
	if keyLen == 0 {
		keyLen = 5
	}

	if p.R >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:keyLen])
		}
	}
	return append([]byte(nil), sum[:keyLen]...)
}

// xor19 applies the 19 additional RC4 passes Algorithm 2 steps (for R>=3)
// require, each round XOR-ing every key byte with the round number.
func xor19(data, baseKey []byte) {
	round := make([]byte, len(baseKey))
	for i := 1; i <= 19; i++ {
		for j, b := range baseKey {
			round[j] = b ^ byte(i)
		}
		c, _ := rc4.NewCipher(round)
		c.XORKeyStream(data, data)
	}
}

// expectedUserHash computes the U entry a conforming writer would have
// produced for fileKey (Algorithm 5, §7.6.3.4).
func expectedUserHash(r int, fileKey, id0 []byte) [32]byte {
	var out [32]byte
	if r <= 2 {
		c, _ := rc4.NewCipher(fileKey)
		c.XORKeyStream(out[:], padding[:])
		return out
	}

	buf := append([]byte(nil), padding[:]...)
	buf = append(buf, id0...)
	hash := md5.Sum(buf)

	c, _ := rc4.NewCipher(fileKey)
	c.XORKeyStream(hash[:], hash[:])
	xor19(hash[:], fileKey)
	copy(out[:16], hash[:])
	return out
}

// decryptOwnerEntry recovers the padded user password an O entry
// encodes, given the owner-password-derived RC4 key (Algorithm 7,
// §7.6.3.6, run in reverse to validate rather than to generate).
func decryptOwnerEntry(r, keyLen int, ownerPassword []byte, o [32]byte) [32]byte {
	padded := padPassword(ownerPassword)
	sum := md5.Sum(padded[:])
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:keyLen])
		}
	}
	rc4Key := sum[:keyLen]

	out := o
	if r <= 2 {
		c, _ := rc4.NewCipher(rc4Key)
		c.XORKeyStream(out[:], out[:])
		return out
	}

	for i := 19; i >= 0; i-- {
		round := make([]byte, len(rc4Key))
		for j, b := range rc4Key {
			round[j] = b ^ byte(i)
		}
		c, _ := rc4.NewCipher(round)
		c.XORKeyStream(out[:], out[:])
	}
	return out
}

// ComputeOwnerEntry runs Algorithm 3 (§7.6.3.3) forward, the direction a
// writer uses to produce an O entry for a fresh encrypted file;
// decryptOwnerEntry above is the same recipe run in reverse for
// authentication.
func ComputeOwnerEntry(r, keyLen int, userPW, ownerPW []byte) [32]byte {
	ownerPadded := padPassword(ownerPW)
	sum := md5.Sum(ownerPadded[:])
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:keyLen])
		}
	}
	rc4Key := sum[:keyLen]

	var out [32]byte
	out = padPassword(userPW)
	c, _ := rc4.NewCipher(rc4Key)
	c.XORKeyStream(out[:], out[:])
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			round := make([]byte, len(rc4Key))
			for j, b := range rc4Key {
				round[j] = b ^ byte(i)
			}
			c, _ := rc4.NewCipher(round)
			c.XORKeyStream(out[:], out[:])
		}
	}
	return out
}

// ComputeUserEntry runs Algorithm 5 (§7.6.3.4) forward, deriving the U entry
// a conforming writer stores for fileKey. It is the same recipe
// expectedUserHash already implements for authentication.
func ComputeUserEntry(r int, fileKey, id0 []byte) [32]byte {
	return expectedUserHash(r, fileKey, id0)
}

// AuthenticateUser runs Algorithm 6 (§7.6.3.4): it derives the file key from
// password treated as the user password and checks it against U.
func AuthenticateUser(password []byte, p Params) (fileKey []byte, ok bool) {
	key := FileKey(password, p)
	want := expectedUserHash(p.R, key, p.ID0)
	if p.R <= 2 {
		return key, want == p.U
	}
	// For R>=3 only the first 16 bytes of U are compared.
	return key, truncate16(want) == truncate16(p.U)
}

func truncate16(b [32]byte) [32]byte {
	var out [32]byte
	copy(out[:16], b[:16])
	return out
}

// AuthenticateOwner runs Algorithm 7 (§7.6.3.6): it recovers the
// corresponding user password from O using the candidate owner password,
// then authenticates that recovered password.
func AuthenticateOwner(password []byte, p Params) (fileKey []byte, ok bool) {
	keyLen := p.KeyLengthBytes
	if keyLen == 0 {
		keyLen = 5
	}
	recoveredUserPassword := decryptOwnerEntry(p.R, keyLen, password, p.O)
	return AuthenticateUser(recoveredUserPassword[:], p)
}

// ObjectKey derives the per-object RC4/AES key from the file key, per
// Algorithm 1 (§7.6.2): the file key, low 3 bytes of the object number, low
// 2 bytes of the generation number, and (for AES) the literal "sAlT" are
// hashed with MD5 and truncated to len(fileKey)+5 (max 16) bytes.
func ObjectKey(fileKey []byte, objectNumber, generation int, aes bool) []byte {
	b := append([]byte(nil), fileKey...)
	b = append(b,
		byte(objectNumber), byte(objectNumber>>8), byte(objectNumber>>16),
		byte(generation), byte(generation>>8),
	)
	if aes {
		b = append(b, 's', 'A', 'l', 'T')
	}
	sum := md5.Sum(b)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

// DecryptRC4 decrypts (or encrypts: RC4 is symmetric) data in place.
func DecryptRC4(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	c.XORKeyStream(data, data)
	return data, nil
}

// DecryptAES decrypts data encoded as a leading 16-byte IV followed by
// AES-128-CBC ciphertext with PKCS#7 padding (the V4/AESV2 crypt filter,
// §7.6.2).
func DecryptAES(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("crypt: AES ciphertext shorter than one block")
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("crypt: AES ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, nil
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(ciphertext, ciphertext)

	// Strip PKCS#7 padding; some non-conforming writers omit it, so a
	// missing/implausible pad byte is tolerated rather than rejected.
	if pad := ciphertext[len(ciphertext)-1]; pad > 0 && int(pad) <= aes.BlockSize && int(pad) <= len(ciphertext) {
		ciphertext = ciphertext[:len(ciphertext)-int(pad)]
	}
	return ciphertext, nil
}
