package culling

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUObjectRecordSource is the canonical WGSL definition of the ObjectRecord struct.
// Matches GPUObjectRecord layout exactly (96 bytes, std430 aligned).
//
//go:embed assets/object_record.wgsl
var GPUObjectRecordSource string

// GPUObjectRecord is the GPU-aligned per-object record consumed by the object
// culling pass and indexed by the forward pass via FirstInstance.
// The bounding sphere is pre-transformed to world space on the CPU so the
// object pass needs no matrix multiply.
// Size: 96 bytes (std430 aligned).
type GPUObjectRecord struct {
	Model          [16]float32 // offset 0: model matrix, column-major (mat4x4<f32>)
	BoundingSphere [4]float32  // offset 64: world-space center xyz + radius w
	FirstCluster   uint32      // offset 80: index of the object's first cluster
	ClusterCount   uint32      // offset 84: number of clusters
	BaseVertex     int32       // offset 88: added to each index value (signed)
	FirstIndex     uint32      // offset 92: object's base offset into the index buffer
}

// Size returns the size of the GPUObjectRecord struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUObjectRecord) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUObjectRecord struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload.
func (g *GPUObjectRecord) Marshal() []byte {
	buf := make([]byte, 96)
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Model[i]))
	}
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[64+i*4:68+i*4], math.Float32bits(g.BoundingSphere[i]))
	}
	binary.LittleEndian.PutUint32(buf[80:84], g.FirstCluster)
	binary.LittleEndian.PutUint32(buf[84:88], g.ClusterCount)
	binary.LittleEndian.PutUint32(buf[88:92], uint32(g.BaseVertex))
	binary.LittleEndian.PutUint32(buf[92:96], g.FirstIndex)
	return buf
}

// GPUClusterBoundsSource is the canonical WGSL definition of the ClusterBounds struct.
// Matches GPUClusterBounds layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/cluster_bounds.wgsl
var GPUClusterBoundsSource string

// GPUClusterBounds is the GPU-aligned bounding data for one triangle cluster,
// in the object's local space. The cone cutoff follows the usual convention:
// the cluster is backfacing when dot(view_dir, axis) >= cutoff, and a cutoff
// of 1.0 disables the cone test for that cluster.
// Size: 48 bytes (std430 aligned).
type GPUClusterBounds struct {
	BoundingSphere [4]float32 // offset 0: local-space center xyz + radius w
	ConeAxis       [3]float32 // offset 16: normal cone axis (unit length)
	ConeCutoff     float32    // offset 28: cone cutoff, 1.0 = never cull
	IndexOffset    uint32     // offset 32: offset into the object's index range
	IndexCount     uint32     // offset 36: indices in this cluster
	_pad0          uint32     // offset 40
	_pad1          uint32     // offset 44
}

// Size returns the size of the GPUClusterBounds struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUClusterBounds) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUClusterBounds struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUClusterBounds) Marshal() []byte {
	buf := make([]byte, 48)
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.BoundingSphere[i]))
	}
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.ConeAxis[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.ConeAxis[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.ConeAxis[2]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.ConeCutoff))
	binary.LittleEndian.PutUint32(buf[32:36], g.IndexOffset)
	binary.LittleEndian.PutUint32(buf[36:40], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[40:44], 0) // _pad0
	binary.LittleEndian.PutUint32(buf[44:48], 0) // _pad1
	return buf
}

// GPUCullingUniformsSource is the canonical WGSL definition of the CullingUniforms struct.
// Matches GPUCullingUniforms layout exactly (208 bytes, std140 aligned).
//
//go:embed assets/culling_uniforms.wgsl
var GPUCullingUniformsSource string

// GPUCullingUniforms is the per-frame uniform block shared by both culling
// passes. Planes hold the six view-frustum planes as (normal.xyz, distance).
// ViewProj and the hi-Z fields only matter when occlusion input is attached.
// Size: 208 bytes (std140 aligned).
type GPUCullingUniforms struct {
	Planes           [6][4]float32 // offset 0: frustum planes (array<vec4<f32>, 6>)
	CameraPos        [3]float32    // offset 96: world-space camera position
	_pad0            float32       // offset 108: implicit vec3 pad
	ObjectCount      uint32        // offset 112
	ClusterCapacity  uint32        // offset 116: reserved indirect-draw slots
	ObjectCapacity   uint32        // offset 120: reserved visible-list slots
	_pad1            uint32        // offset 124
	ViewProj         [16]float32   // offset 128: view-projection, column-major (mat4x4<f32>)
	HiZMipCount      uint32        // offset 192: mip levels in the depth pyramid
	OcclusionEnabled uint32        // offset 196: 1 when a depth pyramid is bound
	_pad2            uint32        // offset 200
	_pad3            uint32        // offset 204
}

// Size returns the size of the GPUCullingUniforms struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUCullingUniforms) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCullingUniforms struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 208-byte buffer ready for GPU upload.
func (g *GPUCullingUniforms) Marshal() []byte {
	buf := make([]byte, 208)
	for p := range 6 {
		for i := range 4 {
			off := p*16 + i*4
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(g.Planes[p][i]))
		}
	}
	binary.LittleEndian.PutUint32(buf[96:100], math.Float32bits(g.CameraPos[0]))
	binary.LittleEndian.PutUint32(buf[100:104], math.Float32bits(g.CameraPos[1]))
	binary.LittleEndian.PutUint32(buf[104:108], math.Float32bits(g.CameraPos[2]))
	binary.LittleEndian.PutUint32(buf[108:112], 0) // _pad0
	binary.LittleEndian.PutUint32(buf[112:116], g.ObjectCount)
	binary.LittleEndian.PutUint32(buf[116:120], g.ClusterCapacity)
	binary.LittleEndian.PutUint32(buf[120:124], g.ObjectCapacity)
	binary.LittleEndian.PutUint32(buf[124:128], 0) // _pad1
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[128+i*4:132+i*4], math.Float32bits(g.ViewProj[i]))
	}
	binary.LittleEndian.PutUint32(buf[192:196], g.HiZMipCount)
	binary.LittleEndian.PutUint32(buf[196:200], g.OcclusionEnabled)
	binary.LittleEndian.PutUint32(buf[200:204], 0) // _pad2
	binary.LittleEndian.PutUint32(buf[204:208], 0) // _pad3
	return buf
}

// GPUIndirectArgsSource is the canonical WGSL definition of the IndirectArgs struct.
// Matches GPUIndirectArgs layout exactly (20 bytes).
//
//go:embed assets/indirect_args.wgsl
var GPUIndirectArgsSource string

// GPUIndirectArgs is the GPU-aligned DrawIndexedIndirect arguments written by
// the cluster culling pass.
// Size: 20 bytes (5 × u32).
type GPUIndirectArgs struct {
	IndexCount    uint32 // offset 0: number of indices to draw
	InstanceCount uint32 // offset 4: 1 for a surviving cluster, 0 for an unused slot
	FirstIndex    uint32 // offset 8: offset into the index buffer
	BaseVertex    int32  // offset 12: added to each index value (signed)
	FirstInstance uint32 // offset 16: owning object index, read by the vertex shader
}

// Size returns the size of the GPUIndirectArgs struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUIndirectArgs) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUIndirectArgs struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 20-byte buffer ready for GPU upload.
func (g *GPUIndirectArgs) Marshal() []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint32(buf[0:4], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(g.BaseVertex))
	binary.LittleEndian.PutUint32(buf[16:20], g.FirstInstance)
	return buf
}
