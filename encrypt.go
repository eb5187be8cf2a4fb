package pdfcore

import (
	"github.com/arkaio/pdfcore/crypt"
)

// encryptContext holds the resolved Standard Security Handler state for an
// encrypted Document: the file encryption key and whether streams/strings
// use AES-128-CBC or RC4, per the StmF/StrF crypt filters (V4) or the
// single V1/V2 algorithm.
type encryptContext struct {
	fileKey   []byte
	streamAES bool
	stringAES bool
	id0       []byte

	// encryptMetadata mirrors the Encrypt dict's /EncryptMetadata (default
	// true). When false, the document's XML metadata stream (/Type
	// /Metadata) is stored in the clear and must not be run through the
	// cipher like every other stream.
	encryptMetadata bool
}

// setupEncryption reads the trailer's Encrypt entry, if any, and
// authenticates Document.UserPassword (the empty password if none was
// given) against it. A wrong password is reported as KindAuthFailure,
// distinct from a malformed Encrypt dictionary (KindCorrupted).
func (d *Document) setupEncryption() error {
	encObj, has := d.trailer.Get("Encrypt")
	if !has {
		return nil
	}

	encDirect, err := d.Deref(encObj)
	if err != nil {
		return annotate("encrypt dict", err)
	}
	encDict, ok := asDict(encDirect)
	if !ok {
		return newErrf(KindCorrupted, "encrypt dict", "Encrypt must be a dictionary, got %T", encDirect)
	}

	filterName, _ := asName(mustGet(encDict, "Filter"))
	if filterName != "Standard" {
		return newErrf(KindUnsupportedFeature, "encrypt dict", "unsupported security handler %q", filterName)
	}

	idArr, _ := asArray(mustGet(d.trailer, "ID"))
	var id0 []byte
	if len(idArr) > 0 {
		id0, _ = asString(idArr[0])
	}

	v, _ := asInteger(mustGet(encDict, "V"))
	r, _ := asInteger(mustGet(encDict, "R"))
	lengthBits, hasLength := asInteger(mustGet(encDict, "Length"))
	keyLen := 5
	if hasLength {
		keyLen = int(lengthBits) / 8
	}

	oStr, _ := asString(mustGet(encDict, "O"))
	uStr, _ := asString(mustGet(encDict, "U"))
	if len(oStr) < 32 || len(uStr) < 32 {
		return newErrf(KindCorrupted, "encrypt dict", "O/U entries must be 32-byte strings")
	}
	var o, u [32]byte
	copy(o[:], oStr)
	copy(u[:], uStr)

	p, _ := asInteger(mustGet(encDict, "P"))

	encryptMetadata := true
	if b, ok := mustGet(encDict, "EncryptMetadata").(Boolean); ok {
		encryptMetadata = bool(b)
	}

	params := crypt.Params{
		R:               int(r),
		KeyLengthBytes:  keyLen,
		O:               o,
		U:               u,
		P:               int32(p),
		ID0:             id0,
		EncryptMetadata: encryptMetadata,
	}

	fileKey, ok := crypt.AuthenticateUser(d.UserPassword, params)
	if !ok {
		fileKey, ok = crypt.AuthenticateOwner(d.UserPassword, params)
	}
	if !ok {
		return newErrf(KindAuthFailure, "encrypt dict", "password does not match the document's Standard Security Handler")
	}

	streamAES, stringAES := false, false
	if v == 4 || v == 5 {
		streamAES, err = d.isAESFilter(encDict, "StmF")
		if err != nil {
			return err
		}
		stringAES, err = d.isAESFilter(encDict, "StrF")
		if err != nil {
			return err
		}
	}

	d.enc = &encryptContext{
		fileKey:         fileKey,
		streamAES:       streamAES,
		stringAES:       stringAES,
		id0:             id0,
		encryptMetadata: encryptMetadata,
	}
	return nil
}

// isExemptMetadataStream reports whether dict is the document's XML
// metadata stream and EncryptMetadata is false, per spec.md §3: "the
// metadata stream is exempt when EncryptMetadata is false."
func (d *Document) isExemptMetadataStream(dict *Dict) bool {
	if d.enc == nil || d.enc.encryptMetadata {
		return false
	}
	typ, _ := asName(mustGet(dict, "Type"))
	return typ == "Metadata"
}

// isAESFilter resolves the crypt filter named by encDict[key] (StmF or
// StrF) against the CF dictionary, reporting whether it uses AESV2/AESV3.
// "Identity" (or an absent entry) is RC4-compatible in the sense that it
// performs no decryption at all; callers special-case that separately.
func (d *Document) isAESFilter(encDict *Dict, key Name) (bool, error) {
	nameObj, ok := mustGet(encDict, key).(Name)
	if !ok || nameObj == "Identity" || nameObj == "" {
		return false, nil
	}
	cf, _ := asDict(mustGet(encDict, "CF"))
	if cf == nil {
		return false, newErrf(KindCorrupted, "encrypt dict", "missing CF dictionary for %s %q", key, nameObj)
	}
	entry, ok := asDict(mustGet(cf, nameObj))
	if !ok {
		return false, newErrf(KindCorrupted, "encrypt dict", "missing CF entry %q", nameObj)
	}
	cfm, _ := asName(mustGet(entry, "CFM"))
	switch cfm {
	case "AESV2", "AESV3":
		return true, nil
	case "V2", "":
		return false, nil
	default:
		return false, newErrf(KindUnsupportedFeature, "encrypt dict", "unsupported crypt filter method %q", cfm)
	}
}

// decryptObject walks o recursively, decrypting every String leaf in
// place. Dict/Array/Stream values are rebuilt with their decrypted
// children; everything else is returned unchanged.
func (e *encryptContext) decryptObject(o Object, ref Ref) (Object, error) {
	switch v := o.(type) {
	case String:
		return e.decryptBytes([]byte(v), ref, e.stringAES)
	case Array:
		out := make(Array, len(v))
		for i, elem := range v {
			dec, err := e.decryptObject(elem, ref)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case *Dict:
		out := NewDict()
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			dec, err := e.decryptObject(val, ref)
			if err != nil {
				return nil, err
			}
			out.Set(k, dec)
		}
		return out, nil
	case Stream:
		dict, err := e.decryptObject(v.Dict, ref)
		if err != nil {
			return nil, err
		}
		return Stream{Dict: dict.(*Dict), PayloadOffset: v.PayloadOffset}, nil
	default:
		return o, nil
	}
}

func (e *encryptContext) decryptBytes(data []byte, ref Ref, aes bool) (String, error) {
	key := crypt.ObjectKey(e.fileKey, ref.Number, ref.Generation, aes)
	var (
		out []byte
		err error
	)
	if aes {
		out, err = crypt.DecryptAES(key, data)
	} else {
		out, err = crypt.DecryptRC4(key, data)
	}
	if err != nil {
		return nil, newErr(KindCorrupted, "decrypt", err)
	}
	return String(out), nil
}

// decryptStreamPayload decrypts raw (already filter-undecoded) stream
// bytes for ref, using the StmF crypt filter.
func (e *encryptContext) decryptStreamPayload(raw []byte, ref Ref) ([]byte, error) {
	key := crypt.ObjectKey(e.fileKey, ref.Number, ref.Generation, e.streamAES)
	if e.streamAES {
		return crypt.DecryptAES(key, raw)
	}
	return crypt.DecryptRC4(key, raw)
}
