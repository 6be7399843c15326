// package cpu_culling implements the legacy-profile visibility path: frustum
// tests run on the CPU across a worker pool, survivors are grouped into
// mesh+material instance batches, and each batch is drawn with one instanced
// direct draw whose per-instance data is uploaded that frame.
package cpu_culling

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/common"
)

// Instance is one renderable object as seen by the CPU culler.
type Instance struct {
	// Object is the caller's object index, carried through to the batch.
	Object uint32
	// Mesh and Material key the batch the instance lands in when visible.
	Mesh     uint32
	Material uint32
	// Model is the object's model matrix, column-major.
	Model [16]float32
	// Bounds is the object's local-space bounding sphere.
	Bounds common.Sphere
}

// Batch is one instanced draw: every visible instance sharing a mesh and a
// material, with the per-instance models staged for upload.
type Batch struct {
	Mesh     uint32
	Material uint32
	// Objects are the surviving instances' Object values, in input order.
	Objects []uint32
	// Models are the matching model matrices, the batch's per-instance data.
	Models [][16]float32
}

// InstanceCount returns the number of instances in the batch.
func (b *Batch) InstanceCount() uint32 {
	return uint32(len(b.Objects))
}

// InstanceData serializes the batch's model matrices for the per-instance
// buffer upload.
//
// Returns:
//   - []byte: the packed column-major matrices
func (b *Batch) InstanceData() []byte {
	return common.SliceToBytes(b.Models)
}

// DrawList is the outcome of culling one frame's instances.
type DrawList struct {
	// Batches hold the visible instances grouped by mesh+material, ordered by
	// each key's first appearance in the input.
	Batches []Batch
	// Tested and Visible count the frustum tests and their survivors.
	Tested  int
	Visible int
}

// Culler runs frustum culling and batching for the legacy profile.
type Culler interface {
	// Cull frustum-tests every instance and groups the survivors into
	// instanced-draw batches. The result is deterministic for identical
	// input regardless of worker count.
	//
	// Parameters:
	//   - frustum: the camera frustum, planes pointing inward
	//   - instances: the frame's renderable instances
	//
	// Returns:
	//   - DrawList: the surviving instances grouped into batches
	Cull(frustum common.Frustum, instances []Instance) DrawList
}

// culler is the implementation of the Culler interface.
type culler struct {
	pool      worker.DynamicWorkerPool
	chunkSize int
	taskID    int
}

var _ Culler = &culler{}

// CullerOption is a functional option for configuring a Culler.
type CullerOption func(*culler)

// WithWorkers sets the worker-pool size used for parallel frustum tests.
//
// Parameters:
//   - n: the number of workers, minimum 1
//
// Returns:
//   - CullerOption: option function to apply
func WithWorkers(n int) CullerOption {
	return func(c *culler) {
		if n > 0 {
			c.pool = worker.NewDynamicWorkerPool(n, 256, 1*time.Second)
		}
	}
}

// WithChunkSize sets how many instances one worker task tests. Mostly a test
// hook; the default suits real scenes.
//
// Parameters:
//   - n: instances per task, minimum 1
//
// Returns:
//   - CullerOption: option function to apply
func WithChunkSize(n int) CullerOption {
	return func(c *culler) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// NewCuller creates a CPU culler with a worker pool sized to the machine.
//
// Parameters:
//   - options: functional options to configure the culler
//
// Returns:
//   - Culler: the newly created culler
func NewCuller(options ...CullerOption) Culler {
	c := &culler{chunkSize: 256}
	for _, option := range options {
		option(c)
	}
	if c.pool == nil {
		c.pool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, 1*time.Second)
	}
	return c
}

func (c *culler) Cull(frustum common.Frustum, instances []Instance) DrawList {
	list := DrawList{Tested: len(instances)}
	if len(instances) == 0 {
		return list
	}

	chunks := (len(instances) + c.chunkSize - 1) / c.chunkSize
	visible := make([][]int, chunks)

	var wg sync.WaitGroup
	for chunk := 0; chunk < chunks; chunk++ {
		start := chunk * c.chunkSize
		end := start + c.chunkSize
		if end > len(instances) {
			end = len(instances)
		}
		chunkIdx := chunk
		id := c.taskID
		c.taskID++

		wg.Add(1)
		c.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()

				var survivors []int
				for i := start; i < end; i++ {
					world := instances[i].Bounds.Transformed(instances[i].Model[:])
					if frustum.IntersectsSphere(world) {
						survivors = append(survivors, i)
					}
				}
				visible[chunkIdx] = survivors
				return nil, nil
			},
		})
	}
	wg.Wait()

	// Merge in chunk order so batching is independent of worker scheduling.
	type batchKey struct{ mesh, material uint32 }
	batchFor := make(map[batchKey]int)
	for _, survivors := range visible {
		for _, i := range survivors {
			inst := &instances[i]
			key := batchKey{inst.Mesh, inst.Material}
			idx, ok := batchFor[key]
			if !ok {
				idx = len(list.Batches)
				batchFor[key] = idx
				list.Batches = append(list.Batches, Batch{Mesh: inst.Mesh, Material: inst.Material})
			}
			b := &list.Batches[idx]
			b.Objects = append(b.Objects, inst.Object)
			b.Models = append(b.Models, inst.Model)
			list.Visible++
		}
	}
	return list
}
