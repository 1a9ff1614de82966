package fhe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	luxfhe "github.com/luxfi/fhe"
)

// The luxfi/fhe BitCiphertext binary form is a little-endian uint32 bit count,
// a one-byte integer type, then every bit as a uint32 length followed by the
// encoded sample. splitBits and joinBits convert between that form and one
// block per bit.

func splitBits(data []byte) (luxfhe.FheUintType, [][]byte, error) {
	r := bytes.NewReader(data)

	var numBits uint32
	var t uint8
	if err := binary.Read(r, binary.LittleEndian, &numBits); err != nil {
		return 0, nil, fmt.Errorf("%w: bit count: %v", ErrInvalidCiphertext, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
		return 0, nil, fmt.Errorf("%w: type: %v", ErrInvalidCiphertext, err)
	}
	if numBits == 0 || numBits > 64 {
		return 0, nil, fmt.Errorf("%w: %d bits", ErrInvalidCiphertext, numBits)
	}

	blocks := make([][]byte, numBits)
	for i := range blocks {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return 0, nil, fmt.Errorf("%w: bit %d length: %v", ErrInvalidCiphertext, i, err)
		}
		if int64(n) > int64(r.Len()) {
			return 0, nil, fmt.Errorf("%w: bit %d truncated", ErrInvalidCiphertext, i)
		}
		blocks[i] = make([]byte, n)
		if _, err := io.ReadFull(r, blocks[i]); err != nil {
			return 0, nil, fmt.Errorf("%w: bit %d: %v", ErrInvalidCiphertext, i, err)
		}
	}
	if r.Len() != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidCiphertext, r.Len())
	}
	return luxfhe.FheUintType(t), blocks, nil
}

func joinBits(t luxfhe.FheUintType, blocks [][]byte) []byte {
	size := 5
	for _, b := range blocks {
		size += 4 + len(b)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(blocks)))
	out = append(out, uint8(t))
	for _, b := range blocks {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
		out = append(out, b...)
	}
	return out
}
