package cryptoutil

import "fmt"

// bech32Decode is a minimal bech32 (BIP-0173) decoder, sufficient to pull the
// 32-byte payload out of an age1 recipient string and check its checksum.
// age recipients/identities use plain bech32, not bech32m.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func bech32Decode(s string) (hrp string, data []byte, err error) {
	if len(s) < 8 || len(s) > 1023 {
		return "", nil, fmt.Errorf("cryptoutil: bech32 string has invalid length")
	}
	sep := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '1' {
			sep = i
			break
		}
	}
	if sep < 1 || sep+7 > len(s) {
		return "", nil, fmt.Errorf("cryptoutil: bech32 string missing separator")
	}
	hrp = s[:sep]
	values := make([]byte, len(s)-sep-1)
	for i, c := range s[sep+1:] {
		idx := indexByte(bech32Charset, byte(c))
		if idx < 0 {
			return "", nil, fmt.Errorf("cryptoutil: invalid bech32 character %q", c)
		}
		values[i] = byte(idx)
	}
	if !bech32VerifyChecksum(hrp, values) {
		return "", nil, fmt.Errorf("cryptoutil: bech32 checksum mismatch")
	}
	payload := values[:len(values)-6]
	converted, err := convertBits(payload, 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, converted, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	var out []byte
	maxv := uint32(1)<<toBits - 1
	for _, value := range data {
		if uint32(value)>>fromBits != 0 {
			return nil, fmt.Errorf("cryptoutil: invalid bech32 data value")
		}
		acc = acc<<fromBits | uint32(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits)&byte(maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits))&byte(maxv))
		}
	} else if bits >= fromBits || (acc<<(toBits-bits))&maxv != 0 {
		return nil, fmt.Errorf("cryptoutil: invalid bech32 padding")
	}
	return out, nil
}

func bech32Polymod(values []byte) uint32 {
	gen := []uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func bech32VerifyChecksum(hrp string, data []byte) bool {
	values := append(bech32HRPExpand(hrp), data...)
	return bech32Polymod(values) == 1
}
