package crypt

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"testing"
)

func rc4Crypt(key, data []byte) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(err)
	}
	c.XORKeyStream(data, data)
}

// forgeREntry builds a self-consistent (O, U) pair for revision r the way a
// conforming writer would (Algorithms 3/4/5), so AuthenticateUser/
// AuthenticateOwner can be exercised without an external reference file.
func forgeREntry(t *testing.T, r int, userPW, ownerPW []byte, id0 []byte) Params {
	t.Helper()
	keyLen := 5
	if r >= 3 {
		keyLen = 16
	}

	// O: RC4(ownerKey, paddedUserPassword), ownerKey from the owner
	// password exactly as decryptOwnerEntry expects to reverse it.
	ownerPadded := padPassword(ownerPW)
	oSum := md5.Sum(ownerPadded[:])
	if r >= 3 {
		for i := 0; i < 50; i++ {
			oSum = md5.Sum(oSum[:keyLen])
		}
	}
	ownerRC4Key := oSum[:keyLen]

	userPadded := padPassword(userPW)
	var o [32]byte
	copy(o[:], userPadded[:])
	rc4Crypt(ownerRC4Key, o[:])
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			round := make([]byte, len(ownerRC4Key))
			for j, b := range ownerRC4Key {
				round[j] = b ^ byte(i)
			}
			rc4Crypt(round, o[:])
		}
	}

	p := Params{R: r, KeyLengthBytes: keyLen, O: o, P: -4, ID0: id0, EncryptMetadata: true}
	fileKey := FileKey(userPW, p)
	p.U = expectedUserHash(r, fileKey, id0)
	return p
}

func TestAuthenticateUserEmptyPassword(t *testing.T) {
	id0 := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	for _, r := range []int{2, 3, 4} {
		p := forgeREntry(t, r, nil, []byte("owner-secret"), id0)
		key, ok := AuthenticateUser(nil, p)
		if !ok {
			t.Errorf("R=%d: AuthenticateUser with the correct (empty) password failed", r)
		}
		if len(key) != p.KeyLengthBytes {
			t.Errorf("R=%d: file key length = %d, want %d", r, len(key), p.KeyLengthBytes)
		}
	}
}

func TestAuthenticateUserWrongPassword(t *testing.T) {
	id0 := []byte("0123456789abcdef")
	p := forgeREntry(t, 3, []byte("correct"), []byte("owner-secret"), id0)
	if _, ok := AuthenticateUser([]byte("wrong"), p); ok {
		t.Error("AuthenticateUser should reject a wrong user password")
	}
}

func TestAuthenticateOwner(t *testing.T) {
	id0 := []byte("0123456789abcdef")
	userPW, ownerPW := []byte("user-secret"), []byte("owner-secret")
	p := forgeREntry(t, 3, userPW, ownerPW, id0)

	key, ok := AuthenticateOwner(ownerPW, p)
	if !ok {
		t.Fatal("AuthenticateOwner with the correct owner password failed")
	}
	userKey, _ := AuthenticateUser(userPW, p)
	if !bytes.Equal(key, userKey) {
		t.Error("owner- and user-password authentication should derive the same file key")
	}
}

func TestObjectKeyLength(t *testing.T) {
	fileKey := bytes.Repeat([]byte{0x42}, 5)
	rc4Key := ObjectKey(fileKey, 12, 0, false)
	if len(rc4Key) != 10 {
		t.Errorf("RC4 object key length = %d, want %d", len(rc4Key), 10)
	}
	aesKey := ObjectKey(fileKey, 12, 0, true)
	if len(aesKey) != 10 {
		t.Errorf("AES object key length = %d, want %d", len(aesKey), 10)
	}

	fileKey16 := bytes.Repeat([]byte{0x42}, 16)
	capped := ObjectKey(fileKey16, 12, 0, false)
	if len(capped) != 16 {
		t.Errorf("object key length = %d, want capped at 16", len(capped))
	}
}

func TestDecryptRC4RoundTrip(t *testing.T) {
	key := []byte("a secret key")
	plain := []byte("hello, encrypted world")

	ciphertext := append([]byte(nil), plain...)
	if _, err := DecryptRC4(key, ciphertext); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ciphertext, plain) {
		t.Fatal("RC4 encryption should have changed the bytes")
	}

	recovered := append([]byte(nil), ciphertext...)
	if _, err := DecryptRC4(key, recovered); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, plain) {
		t.Errorf("RC4 round trip: got %q, want %q", recovered, plain)
	}
}

func TestDecryptAESRejectsShortInput(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 16)
	if _, err := DecryptAES(key, []byte{1, 2, 3}); err == nil {
		t.Error("expected an error for ciphertext shorter than one AES block")
	}
}
