package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// CompileShaderToSPIRV compiles WGSL source to SPIR-V words.
func CompileShaderToSPIRV(wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not whole words", ErrShaderCompile, len(spirv))
	}
	return spirvWords(spirv), nil
}

// spirvWords reinterprets little-endian SPIR-V bytes as 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
