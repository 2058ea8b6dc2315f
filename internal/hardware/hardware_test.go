package hardware

import (
	"runtime"
	"testing"

	"idgaf/pkg/types"
)

func TestDetectCachesSnapshot(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	first := Detect()
	if first.Platform != runtime.GOOS || first.Cores < 1 {
		t.Fatalf("unexpected snapshot: %+v", first)
	}
	second := Detect()
	if first != second {
		t.Fatalf("expected cached snapshot to be reused")
	}
}

func TestOverrideAndReset(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	Override(types.HardwareInfo{Platform: "test", HasGPU: true, Cores: 2})
	if hw := Detect(); !hw.HasGPU || hw.Platform != "test" {
		t.Fatalf("override not honored: %+v", hw)
	}
	Reset()
	if hw := Detect(); hw.Platform == "test" {
		t.Fatalf("reset did not clear the override")
	}
}
