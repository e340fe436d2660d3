package decode

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/meigma/p4k/internal/p4ktype"
)

// Key is the AES-128 key every P4K archive is encrypted with. It is a
// published constant of the format, not a secret.
var Key = [16]byte{
	0x5E, 0x7A, 0x20, 0x02, 0x30, 0x2E, 0xEB, 0x1A,
	0x3B, 0xB6, 0x17, 0xC3, 0x0F, 0xDE, 0x1E, 0x47,
}

// Decrypt decrypts buf in place with AES-128-CBC, the format key and a zero
// IV, then trims trailing zero bytes.
//
// The cipher pads with zeros, so padding cannot be told apart from zero
// bytes at the end of the payload. Those are trimmed as well; callers that
// know the real size restore them.
func Decrypt(buf []byte) ([]byte, error) {
	if len(buf)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			p4ktype.ErrCrypto, len(buf), aes.BlockSize)
	}
	block, err := aes.NewCipher(Key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", p4ktype.ErrCrypto, err)
	}
	var iv [aes.BlockSize]byte
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(buf, buf)
	return trimZeros(buf), nil
}

func trimZeros(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
