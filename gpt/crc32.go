package gpt

import "sync"

// polynomialReflected is the bit-reversed IEEE 802.3 CRC32 polynomial.
const polynomialReflected = 0xedb88320

// crcSeed is used both as the initial value and as the final XOR mask.
const crcSeed = 0xffffffff

var crcTable = sync.OnceValue(func() *[256]uint32 {
	var t [256]uint32
	for i := range t {
		val := uint32(i)
		for j := 0; j < 8; j++ {
			if val&1 == 1 {
				val = (val >> 1) ^ polynomialReflected
			} else {
				val >>= 1
			}
		}
		t[i] = val
	}
	return &t
})

// update folds b into crc without applying the final XOR.
func update(crc uint32, b []byte) uint32 {
	t := crcTable()
	for _, c := range b {
		crc = t[byte(crc)^c] ^ (crc >> 8)
	}
	return crc
}

// Checksum returns the reflected CRC32 of b, starting from seed and XORing the
// result with seed. With seed 0xffffffff this is the CRC32 used by GPT
// headers and partition entry arrays (and by Ethernet and ZIP).
func Checksum(b []byte, seed uint32) uint32 {
	return update(seed, b) ^ seed
}
