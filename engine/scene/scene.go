// package scene keeps the CPU-side registry of renderable objects: mesh
// geometry with precomputed cluster bounds, per-object transforms and bounding
// volumes, and the per-object bindless slots on the modern profile. The scene
// produces the dense snapshots the culling paths consume each frame.
package scene

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/bindless"
	"github.com/Carmen-Shannon/oxy-graph/engine/culling"
	cpu_culling "github.com/Carmen-Shannon/oxy-graph/engine/culling/cpu"
	"github.com/google/uuid"
)

// ObjectDescriptor is the caller's view of one renderable object.
type ObjectDescriptor struct {
	// Mesh is a mesh ID previously returned by RegisterMesh.
	Mesh uint32
	// Material is an opaque material reference, used as a batching key on the
	// legacy profile and stored in the bindless descriptor on modern.
	Material uint32
	// Transform is the object's model matrix, column-major.
	Transform [16]float32
}

// BindlessObject is the descriptor stored in the bindless table for each
// object on the modern profile.
type BindlessObject struct {
	Object   uuid.UUID
	Mesh     uint32
	Material uint32
}

// Scene is the object registry shared by both culling profiles.
type Scene interface {
	// RegisterMesh stores geometry and precomputes its cluster bounds and
	// object-level bounding sphere.
	//
	// Parameters:
	//   - positions: vertex positions
	//   - indices: triangle index list, length a multiple of 3
	//
	// Returns:
	//   - uint32: the mesh ID for ObjectDescriptor.Mesh
	//   - error: when the geometry is empty or malformed
	RegisterMesh(positions [][3]float32, indices []uint32) (uint32, error)

	// AddObject registers a renderable object. On the modern profile the
	// object also claims a bindless slot.
	//
	// Parameters:
	//   - desc: the object's mesh, material, and transform
	//
	// Returns:
	//   - uuid.UUID: the object's ID
	//   - error: when the mesh is unknown or the bindless table rejects it
	AddObject(desc ObjectDescriptor) (uuid.UUID, error)

	// UpdateTransform replaces an object's model matrix.
	//
	// Parameters:
	//   - id: the object's ID
	//   - transform: the new model matrix, column-major
	//
	// Returns:
	//   - error: when the object is unknown
	UpdateTransform(id uuid.UUID, transform [16]float32) error

	// RemoveObject removes an object and compacts the registry, releasing
	// its bindless slot on the modern profile.
	//
	// Parameters:
	//   - id: the object's ID
	//
	// Returns:
	//   - error: when the object is unknown
	RemoveObject(id uuid.UUID) error

	// BindlessSlot returns the object's bindless slot on the modern profile.
	//
	// Parameters:
	//   - id: the object's ID
	//
	// Returns:
	//   - uint32: the slot index
	//   - bool: false when unknown or the scene has no bindless table
	BindlessSlot(id uuid.UUID) (uint32, bool)

	// ObjectCount returns the number of registered objects.
	ObjectCount() int

	// TotalClusterCount returns the summed cluster count across all
	// registered objects, the input to capacity sizing.
	TotalClusterCount() int

	// SnapshotGPU builds the dense object and cluster arrays for the GPU
	// culler, in registration order.
	//
	// Returns:
	//   - []culling.GPUObjectRecord: one record per object
	//   - []culling.GPUClusterBounds: all objects' clusters, indexed by each
	//     record's FirstCluster
	SnapshotGPU() ([]culling.GPUObjectRecord, []culling.GPUClusterBounds)

	// SnapshotCPU builds the instance list for the legacy CPU culler, in
	// registration order.
	//
	// Returns:
	//   - []cpu_culling.Instance: one instance per object
	SnapshotCPU() []cpu_culling.Instance

	// Geometry returns all registered meshes merged into one vertex and one
	// index array. Each object record's BaseVertex and FirstIndex address into
	// these arrays, so a single pair of device buffers serves every draw.
	//
	// Returns:
	//   - [][3]float32: the merged vertex positions
	//   - []uint32: the merged index list, mesh-relative
	Geometry() ([][3]float32, []uint32)

	// MeshRanges returns each registered mesh's slice of the merged geometry
	// arrays, keyed by mesh ID. The legacy draw path issues one instanced
	// draw per (mesh, material) batch from these ranges.
	//
	// Returns:
	//   - map[uint32]MeshRange: the per-mesh draw ranges
	MeshRanges() map[uint32]MeshRange
}

// MeshRange locates one mesh within the merged geometry arrays.
type MeshRange struct {
	// FirstIndex is the mesh's offset into the merged index array.
	FirstIndex uint32
	// IndexCount is the mesh's index count.
	IndexCount uint32
	// BaseVertex is added to each index to address the merged vertex array.
	BaseVertex int32
}

type mesh struct {
	positions [][3]float32
	indices   []uint32
	clusters  []culling.GPUClusterBounds
	bounds    common.Sphere

	// baseVertex and firstIndex locate this mesh in the merged geometry
	// arrays. Meshes are append-only so the offsets never move.
	baseVertex int32
	firstIndex uint32
}

type object struct {
	id           uuid.UUID
	mesh         uint32
	material     uint32
	transform    [16]float32
	bindlessSlot uint32
	hasSlot      bool
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu sync.Mutex

	meshes     map[uint32]*mesh
	nextMeshID uint32

	// objects stays densely packed in registration order; indexOf maps IDs to
	// positions and is patched on removal.
	objects []object
	indexOf map[uuid.UUID]int

	table            bindless.Table
	clusterTriangles int
	totalClusters    int

	vertexTotal int
	indexTotal  int
}

var _ Scene = &scene{}

// SceneOption is a functional option for configuring a Scene.
type SceneOption func(*scene)

// WithBindlessTable wires a bindless table into the scene; objects then claim
// a slot on Add and release it on Remove. Modern profile only.
//
// Parameters:
//   - table: the bindless table objects register into
//
// Returns:
//   - SceneOption: option function to apply
func WithBindlessTable(table bindless.Table) SceneOption {
	return func(s *scene) {
		s.table = table
	}
}

// WithClusterTriangles sets the triangle budget per cluster for registered
// meshes.
//
// Parameters:
//   - n: triangles per cluster, minimum 1
//
// Returns:
//   - SceneOption: option function to apply
func WithClusterTriangles(n int) SceneOption {
	return func(s *scene) {
		if n > 0 {
			s.clusterTriangles = n
		}
	}
}

// NewScene creates an empty scene.
//
// Parameters:
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(options ...SceneOption) Scene {
	s := &scene{
		meshes:           make(map[uint32]*mesh),
		indexOf:          make(map[uuid.UUID]int),
		nextMeshID:       1,
		clusterTriangles: culling.DefaultClusterTriangles,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) RegisterMesh(positions [][3]float32, indices []uint32) (uint32, error) {
	if len(positions) == 0 || len(indices) == 0 {
		return 0, fmt.Errorf("scene: mesh has no geometry")
	}
	if len(indices)%3 != 0 {
		return 0, fmt.Errorf("scene: index count %d is not a multiple of 3", len(indices))
	}
	for _, idx := range indices {
		if int(idx) >= len(positions) {
			return 0, fmt.Errorf("scene: index %d out of range for %d vertices", idx, len(positions))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	box := common.AABB{Min: positions[0], Max: positions[0]}
	for _, p := range positions {
		box.Extend(p)
	}

	id := s.nextMeshID
	s.nextMeshID++
	s.meshes[id] = &mesh{
		positions:  positions,
		indices:    indices,
		clusters:   culling.ComputeClusterBounds(positions, indices, s.clusterTriangles),
		bounds:     box.BoundingSphere(),
		baseVertex: int32(s.vertexTotal),
		firstIndex: uint32(s.indexTotal),
	}
	s.vertexTotal += len(positions)
	s.indexTotal += len(indices)
	return id, nil
}

func (s *scene) AddObject(desc ObjectDescriptor) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meshes[desc.Mesh]
	if !ok {
		return uuid.Nil, fmt.Errorf("scene: unknown mesh %d", desc.Mesh)
	}

	obj := object{
		id:        uuid.New(),
		mesh:      desc.Mesh,
		material:  desc.Material,
		transform: desc.Transform,
	}
	if s.table != nil {
		slot, err := s.table.Register(BindlessObject{Object: obj.id, Mesh: desc.Mesh, Material: desc.Material})
		if err != nil {
			return uuid.Nil, err
		}
		obj.bindlessSlot = slot
		obj.hasSlot = true
	}

	s.indexOf[obj.id] = len(s.objects)
	s.objects = append(s.objects, obj)
	s.totalClusters += len(m.clusters)
	return obj.id, nil
}

func (s *scene) UpdateTransform(id uuid.UUID, transform [16]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexOf[id]
	if !ok {
		return fmt.Errorf("scene: unknown object %s", id)
	}
	s.objects[idx].transform = transform
	return nil
}

func (s *scene) RemoveObject(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexOf[id]
	if !ok {
		return fmt.Errorf("scene: unknown object %s", id)
	}
	obj := s.objects[idx]
	if obj.hasSlot {
		if err := s.table.Unregister(obj.bindlessSlot); err != nil {
			return err
		}
	}
	s.totalClusters -= len(s.meshes[obj.mesh].clusters)

	// Compact: shift the tail down one slot so registration order holds.
	copy(s.objects[idx:], s.objects[idx+1:])
	s.objects = s.objects[:len(s.objects)-1]
	delete(s.indexOf, id)
	for i := idx; i < len(s.objects); i++ {
		s.indexOf[s.objects[i].id] = i
	}
	return nil
}

func (s *scene) BindlessSlot(id uuid.UUID) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexOf[id]
	if !ok || !s.objects[idx].hasSlot {
		return 0, false
	}
	return s.objects[idx].bindlessSlot, true
}

func (s *scene) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *scene) TotalClusterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalClusters
}

func (s *scene) SnapshotGPU() ([]culling.GPUObjectRecord, []culling.GPUClusterBounds) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]culling.GPUObjectRecord, 0, len(s.objects))
	clusters := make([]culling.GPUClusterBounds, 0, s.totalClusters)
	for i := range s.objects {
		obj := &s.objects[i]
		m := s.meshes[obj.mesh]
		world := m.bounds.Transformed(obj.transform[:])

		records = append(records, culling.GPUObjectRecord{
			Model:          obj.transform,
			BoundingSphere: [4]float32{world.Center[0], world.Center[1], world.Center[2], world.Radius},
			FirstCluster:   uint32(len(clusters)),
			ClusterCount:   uint32(len(m.clusters)),
			BaseVertex:     m.baseVertex,
			FirstIndex:     m.firstIndex,
		})
		clusters = append(clusters, m.clusters...)
	}
	return records, clusters
}

func (s *scene) Geometry() ([][3]float32, []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([][3]float32, 0, s.vertexTotal)
	indices := make([]uint32, 0, s.indexTotal)
	for id := uint32(1); id < s.nextMeshID; id++ {
		m := s.meshes[id]
		positions = append(positions, m.positions...)
		indices = append(indices, m.indices...)
	}
	return positions, indices
}

func (s *scene) MeshRanges() map[uint32]MeshRange {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranges := make(map[uint32]MeshRange, len(s.meshes))
	for id, m := range s.meshes {
		ranges[id] = MeshRange{
			FirstIndex: m.firstIndex,
			IndexCount: uint32(len(m.indices)),
			BaseVertex: m.baseVertex,
		}
	}
	return ranges
}

func (s *scene) SnapshotCPU() []cpu_culling.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	instances := make([]cpu_culling.Instance, 0, len(s.objects))
	for i := range s.objects {
		obj := &s.objects[i]
		m := s.meshes[obj.mesh]
		instances = append(instances, cpu_culling.Instance{
			Object:   uint32(i),
			Mesh:     obj.mesh,
			Material: obj.material,
			Model:    obj.transform,
			Bounds:   m.bounds,
		})
	}
	return instances
}
