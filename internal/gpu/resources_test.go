//go:build !nogpu

package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("no noop adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestResourceManager(t *testing.T, device hal.Device, queue hal.Queue) *ResourceManager {
	t.Helper()
	computeLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "test_compute_bgl",
		Entries: computeBindLayoutEntries(),
	})
	if err != nil {
		t.Fatalf("create compute layout: %v", err)
	}
	blitLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "test_blit_bgl",
		Entries: blitBindLayoutEntries(),
	})
	if err != nil {
		t.Fatalf("create blit layout: %v", err)
	}
	t.Cleanup(func() {
		device.DestroyBindGroupLayout(blitLayout)
		device.DestroyBindGroupLayout(computeLayout)
	})

	rm, err := NewResourceManager(device, queue, computeLayout, blitLayout)
	if err != nil {
		t.Fatalf("NewResourceManager: %v", err)
	}
	return rm
}

func TestEnsureBuildsResourceSet(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	rm := newTestResourceManager(t, device, queue)
	defer rm.Close()

	if w, h := rm.Size(); w != 0 || h != 0 {
		t.Errorf("Size before Ensure = %dx%d, want 0x0", w, h)
	}
	if rm.Canvas() != nil || rm.ComputeBindGroup() != nil || rm.BlitBindGroup() != nil {
		t.Error("resource accessors should return nil before Ensure")
	}

	if err := rm.Ensure(512, 512); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if w, h := rm.Size(); w != 512 || h != 512 {
		t.Errorf("Size = %dx%d, want 512x512", w, h)
	}
	if rm.Generation() != 1 {
		t.Errorf("Generation = %d, want 1", rm.Generation())
	}
	if rm.Canvas() == nil || rm.ComputeBindGroup() == nil || rm.BlitBindGroup() == nil {
		t.Error("resource accessors should be populated after Ensure")
	}
}

func TestEnsureResizeSwapsGeneration(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	rm := newTestResourceManager(t, device, queue)
	defer rm.Close()

	if err := rm.Ensure(512, 512); err != nil {
		t.Fatalf("Ensure 512: %v", err)
	}
	oldCanvas := rm.Canvas()

	if err := rm.Ensure(1024, 1024); err != nil {
		t.Fatalf("Ensure 1024: %v", err)
	}
	if w, h := rm.Size(); w != 1024 || h != 1024 {
		t.Errorf("Size = %dx%d, want 1024x1024", w, h)
	}
	if rm.Generation() != 2 {
		t.Errorf("Generation = %d, want 2", rm.Generation())
	}
	if rm.Canvas() == oldCanvas {
		t.Error("canvas not recreated on resize")
	}
	if rm.ComputeBindGroup() == nil || rm.BlitBindGroup() == nil {
		t.Error("bind groups missing after resize")
	}
}

func TestEnsureSameSizeIsNoop(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	rm := newTestResourceManager(t, device, queue)
	defer rm.Close()

	if err := rm.Ensure(256, 128); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	canvas := rm.Canvas()
	if err := rm.Ensure(256, 128); err != nil {
		t.Fatalf("Ensure same size: %v", err)
	}
	if rm.Generation() != 1 {
		t.Errorf("Generation = %d, want 1 (no swap)", rm.Generation())
	}
	if rm.Canvas() != canvas {
		t.Error("matching dimensions should keep the current canvas")
	}
}

func TestEnsureRejectsZeroDimensions(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	rm := newTestResourceManager(t, device, queue)
	defer rm.Close()

	if err := rm.Ensure(0, 64); err == nil {
		t.Error("Ensure(0, 64) should fail")
	}
	if err := rm.Ensure(64, 0); err == nil {
		t.Error("Ensure(64, 0) should fail")
	}
}

func TestStageUploadBeforeEnsureFails(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	rm := newTestResourceManager(t, device, queue)
	defer rm.Close()

	if err := rm.StageUpload(make([]byte, 32), 0); err == nil {
		t.Error("StageUpload before Ensure should fail")
	}
	if err := rm.WriteBlitConfig(64, 64); err == nil {
		t.Error("WriteBlitConfig before Ensure should fail")
	}

	if err := rm.Ensure(64, 64); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := rm.StageUpload(make([]byte, 32), 0); err != nil {
		t.Errorf("StageUpload after Ensure: %v", err)
	}
	if err := rm.StageUpload(make([]byte, configByteSize), 0); err == nil {
		t.Error("oversized parameter record should be rejected")
	}
}