package routine

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

//go:embed assets/frame_uniforms.wgsl
var GPUFrameUniformsSource string

// GPUFrameUniforms is the per-frame uniform block for the forward shader.
//
// std140-compatible layout, 64 bytes:
//
//	offset  0: ViewProj (mat4x4<f32>)
type GPUFrameUniforms struct {
	ViewProj [16]float32
}

// Size returns the byte size of the struct as laid out for the GPU.
//
// Returns:
//   - int: size in bytes
func (u *GPUFrameUniforms) Size() int {
	return int(unsafe.Sizeof(*u))
}

// Marshal encodes the struct into little-endian bytes matching the WGSL
// layout.
//
// Returns:
//   - []byte: the encoded bytes
func (u *GPUFrameUniforms) Marshal() []byte {
	buf := make([]byte, u.Size())
	for i, v := range u.ViewProj {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
