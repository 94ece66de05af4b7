// Package security implements the cryptographic hook consulted during
// serialization and the standard security handler behind it (RC4 and
// AES-128-CBC with MD5 object-key derivation).
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"errors"
)

// CryptInfo is the opaque per-document credential pair passed through
// serialization. The object model never interprets it; stream payload
// emitters call Encrypt before writing and loaders call Decrypt after
// reading. Either func may be nil, meaning identity.
type CryptInfo struct {
	Encrypt func(num uint32, gen uint16, data []byte) []byte
	Decrypt func(num uint32, gen uint16, data []byte) []byte
}

// EncryptBytes applies the encrypt half, or returns data unchanged.
func (c *CryptInfo) EncryptBytes(num uint32, gen uint16, data []byte) []byte {
	if c == nil || c.Encrypt == nil {
		return data
	}
	return c.Encrypt(num, gen, data)
}

// DecryptBytes applies the decrypt half, or returns data unchanged.
func (c *CryptInfo) DecryptBytes(num uint32, gen uint16, data []byte) []byte {
	if c == nil || c.Decrypt == nil {
		return data
	}
	return c.Decrypt(num, gen, data)
}

// Handler authenticates against a document's encryption dictionary and
// exposes the resulting CryptInfo.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Info() *CryptInfo
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool               { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Info() *CryptInfo                { return nil }

// NoopHandler returns the handler for unencrypted documents.
func NoopHandler() Handler { return noEncryptionHandler{} }

// Standard padding string per PDF 1.7 §7.6.3.3.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// HandlerBuilder assembles a standard security handler from the fields
// of the document's /Encrypt dictionary and the first file identifier.
type HandlerBuilder struct {
	filter  string
	v       int
	r       int
	length  int
	owner   []byte
	user    []byte
	perms   int32
	fileID  []byte
	encMeta bool
	hasMeta bool
}

func (b *HandlerBuilder) WithFilter(name string) *HandlerBuilder { b.filter = name; return b }
func (b *HandlerBuilder) WithVersion(v, r int) *HandlerBuilder   { b.v, b.r = v, r; return b }
func (b *HandlerBuilder) WithLength(bits int) *HandlerBuilder    { b.length = bits; return b }
func (b *HandlerBuilder) WithOwnerEntry(o []byte) *HandlerBuilder {
	b.owner = o
	return b
}
func (b *HandlerBuilder) WithUserEntry(u []byte) *HandlerBuilder { b.user = u; return b }
func (b *HandlerBuilder) WithPermissions(p int32) *HandlerBuilder {
	b.perms = p
	return b
}
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder { b.fileID = id; return b }
func (b *HandlerBuilder) WithEncryptMetadata(v bool) *HandlerBuilder {
	b.encMeta = v
	b.hasMeta = true
	return b
}

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.filter == "" {
		return NoopHandler(), nil
	}
	if b.filter != "Standard" {
		return nil, errors.New("security: unsupported encryption filter")
	}
	v := b.v
	if v == 0 {
		v = 1
	}
	if v > 4 {
		return nil, errors.New("security: encryption V>4 not supported")
	}
	r := b.r
	if r == 0 {
		r = 2
	}
	keyLen := b.length
	if keyLen == 0 {
		keyLen = 40
	}
	if v >= 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 {
		return nil, errors.New("security: encryption length must be multiple of 8")
	}
	encMeta := true
	if b.hasMeta {
		encMeta = b.encMeta
	}
	return &standardHandler{
		v:          v,
		r:          r,
		lengthBits: keyLen,
		oEntry:     b.owner,
		uEntry:     b.user,
		p:          b.perms,
		fileID:     b.fileID,
		encMeta:    encMeta,
		useAES:     v >= 4,
	}, nil
}

type standardHandler struct {
	key        []byte
	v          int
	r          int
	lengthBits int
	oEntry     []byte
	uEntry     []byte
	p          int32
	fileID     []byte
	encMeta    bool
	useAES     bool
	authed     bool
}

func (h *standardHandler) IsEncrypted() bool { return true }

// Authenticate derives the file key from the user password per PDF 1.7
// Algorithm 2 and verifies it against the /U entry.
func (h *standardHandler) Authenticate(password string) error {
	key := h.fileKey([]byte(password))
	if !h.checkUserEntry(key) {
		return errors.New("security: password rejected")
	}
	h.key = key
	h.authed = true
	return nil
}

func (h *standardHandler) fileKey(password []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, password)
	copy(padded[n:], passwordPad)

	hash := md5.New()
	hash.Write(padded)
	hash.Write(h.oEntry)
	hash.Write([]byte{byte(h.p), byte(h.p >> 8), byte(h.p >> 16), byte(h.p >> 24)})
	hash.Write(h.fileID)
	if h.r >= 4 && !h.encMeta {
		hash.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	sum := hash.Sum(nil)

	keyLen := h.lengthBits / 8
	if h.r == 2 {
		keyLen = 5
	}
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum2 := md5.Sum(sum[:keyLen])
			sum = sum2[:]
		}
	}
	return append([]byte(nil), sum[:keyLen]...)
}

func (h *standardHandler) checkUserEntry(key []byte) bool {
	if len(h.uEntry) < 16 {
		return true // damaged entry: accept, decryption will garble visibly
	}
	if h.r == 2 {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return false
		}
		out := make([]byte, 32)
		c.XORKeyStream(out, passwordPad)
		return bytes.Equal(out, h.uEntry[:32])
	}
	hash := md5.New()
	hash.Write(passwordPad)
	hash.Write(h.fileID)
	sum := hash.Sum(nil)
	out := make([]byte, 16)
	c, err := rc4.NewCipher(key)
	if err != nil {
		return false
	}
	c.XORKeyStream(out, sum)
	for i := 1; i <= 19; i++ {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		c, err = rc4.NewCipher(step)
		if err != nil {
			return false
		}
		c.XORKeyStream(out, out)
	}
	return bytes.Equal(out, h.uEntry[:16])
}

// Info returns the crypt pair bound to the authenticated file key.
func (h *standardHandler) Info() *CryptInfo {
	return &CryptInfo{
		Encrypt: func(num uint32, gen uint16, data []byte) []byte {
			return h.apply(num, gen, data, true)
		},
		Decrypt: func(num uint32, gen uint16, data []byte) []byte {
			return h.apply(num, gen, data, false)
		},
	}
}

var aesSalt = []byte{0x73, 0x41, 0x6C, 0x54} // "sAlT"

// objectKey derives the per-object key per PDF 1.7 Algorithm 1.
func (h *standardHandler) objectKey(num uint32, gen uint16) []byte {
	hash := md5.New()
	hash.Write(h.key)
	hash.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16)})
	hash.Write([]byte{byte(gen), byte(gen >> 8)})
	if h.useAES {
		hash.Write(aesSalt)
	}
	sum := hash.Sum(nil)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func (h *standardHandler) apply(num uint32, gen uint16, data []byte, encrypt bool) []byte {
	key := h.objectKey(num, gen)
	if !h.useAES {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return data
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out
	}
	if encrypt {
		return aesCBCEncrypt(key, data)
	}
	return aesCBCDecrypt(key, data)
}

func aesCBCEncrypt(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		return data
	}
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return data
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out
}

func aesCBCDecrypt(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		return data
	}
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return data
	}
	iv := data[:aes.BlockSize]
	body := data[aes.BlockSize:]
	out := make([]byte, len(body))
	if len(body) == 0 {
		return out
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	padLen := int(out[len(out)-1])
	if padLen > 0 && padLen <= aes.BlockSize && padLen <= len(out) {
		out = out[:len(out)-padLen]
	}
	return out
}
