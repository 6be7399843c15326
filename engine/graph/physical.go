package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Buffer resolves the binding to its device buffer. Persistent bindings hand
// back the imported buffer; transient bindings lazily create the pooled
// slot's buffer on first use, sized to the slot's capacity so later frames
// can reuse it for any resource the slot serves.
//
// Parameters:
//   - dev: the device used to create a transient slot's buffer on first use
//
// Returns:
//   - *wgpu.Buffer: the backing buffer
//   - error: a type mismatch on the imported object, or a creation failure
func (p Physical) Buffer(dev device.Device) (*wgpu.Buffer, error) {
	if p.Slot == nil {
		buf, ok := p.External.(*wgpu.Buffer)
		if !ok {
			return nil, fmt.Errorf("graph: persistent resource %q is %T, not *wgpu.Buffer", p.Name, p.External)
		}
		return buf, nil
	}
	payload, err := p.Slot.EnsurePayload(func() (any, error) {
		return dev.CreateBuffer(fmt.Sprintf("transient slot %d", p.Slot.ID()), p.Slot.Capacity(), wgpu.BufferUsage(p.Slot.Usage()))
	})
	if err != nil {
		return nil, err
	}
	buf, ok := payload.(*wgpu.Buffer)
	if !ok {
		return nil, fmt.Errorf("graph: transient slot %d holds %T, not *wgpu.Buffer", p.Slot.ID(), payload)
	}
	return buf, nil
}
