package correlation

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/morezero/sdk-bridge/pkg/envelope"
)

const registryTestPrefix = "correlation:registry_test"

// noop returns a comparable continuation so tests can check identity.
func noop() Continuation {
	return Typed(func(*envelope.Response) struct{} { return struct{}{} }, func(struct{}) {})
}

func TestRegister_HandlesStartAtZero(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		if h := r.Register(noop()); h != Handle(i) {
			t.Errorf("%s - handle %d, want %d", registryTestPrefix, h, i)
		}
	}
}

func TestRegister_UniqueAmongOutstanding(t *testing.T) {
	r := New()
	rng := rand.New(rand.NewSource(42))
	outstanding := make(map[Handle]Kind)

	for i := 0; i < 2000; i++ {
		switch rng.Intn(5) {
		case 0, 1:
			h := r.Register(noop())
			if _, dup := outstanding[h]; dup {
				t.Fatalf("%s - handle %d reissued while outstanding", registryTestPrefix, h)
			}
			outstanding[h] = KindOneShot
		case 2:
			h := r.RegisterMultiSlot([]Stage{StageOpen, StageClose}, noop())
			if _, dup := outstanding[h]; dup {
				t.Fatalf("%s - handle %d reissued while outstanding", registryTestPrefix, h)
			}
			outstanding[h] = KindMultiSlot
		case 3:
			h := r.RegisterPersistent("engagement", noop())
			if _, dup := outstanding[h]; dup {
				t.Fatalf("%s - persistent handle %d collides with outstanding entry", registryTestPrefix, h)
			}
		case 4:
			for h, k := range outstanding {
				if k == KindOneShot {
					if _, ok := r.Consume(h); !ok {
						t.Fatalf("%s - expected to consume %d", registryTestPrefix, h)
					}
				} else {
					r.ConsumeStage(h, StageOpen)
					r.ConsumeStage(h, StageClose)
				}
				delete(outstanding, h)
				break
			}
		}
	}

	if got := r.Outstanding().Total(); got != len(outstanding) {
		t.Errorf("%s - outstanding = %d, want %d", registryTestPrefix, got, len(outstanding))
	}
}

func TestAllocate_SkipsOutstanding(t *testing.T) {
	r := New()
	h0 := r.Register(noop())
	r.mu.Lock()
	r.next = h0
	r.mu.Unlock()

	if h := r.Register(noop()); h == h0 {
		t.Errorf("%s - allocated outstanding handle %d", registryTestPrefix, h)
	}
}

func TestConsume_OneShotOnce(t *testing.T) {
	r := New()
	h := r.Register(noop())

	if _, ok := r.Consume(h); !ok {
		t.Fatalf("%s - first consume failed", registryTestPrefix)
	}
	for i := 0; i < 3; i++ {
		if _, ok := r.Consume(h); ok {
			t.Errorf("%s - consume %d succeeded after removal", registryTestPrefix, i+2)
		}
	}
}

func TestConsume_Concurrent(t *testing.T) {
	r := New()
	h := r.Register(noop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Consume(h); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%s - %d consumers won, want 1", registryTestPrefix, wins)
	}
}

func TestConsume_RejectsMultiSlot(t *testing.T) {
	r := New()
	h := r.RegisterMultiSlot([]Stage{StageOpen}, noop())
	if _, ok := r.Consume(h); ok {
		t.Errorf("%s - one-shot consume of multi-slot handle succeeded", registryTestPrefix)
	}
	if _, ok := r.ConsumeStage(h, StageOpen); !ok {
		t.Errorf("%s - stage consume failed", registryTestPrefix)
	}
}

func TestConsumeStage_OrderIndependent(t *testing.T) {
	r := New()
	open := noop()
	closed := noop()
	h := r.RegisterStages(map[Stage]Continuation{StageOpen: open, StageClose: closed})

	c, ok := r.ConsumeStage(h, StageClose)
	if !ok || c != closed {
		t.Fatalf("%s - close slot not returned", registryTestPrefix)
	}
	if _, ok := r.ConsumeStage(h, StageClose); ok {
		t.Errorf("%s - close fired twice", registryTestPrefix)
	}
	if k, ok := r.KindOf(h); !ok || k != KindMultiSlot {
		t.Errorf("%s - handle retired early", registryTestPrefix)
	}

	c, ok = r.ConsumeStage(h, StageOpen)
	if !ok || c != open {
		t.Fatalf("%s - open slot not returned", registryTestPrefix)
	}
	if _, ok := r.KindOf(h); ok {
		t.Errorf("%s - handle still outstanding after last stage", registryTestPrefix)
	}
}

func TestConsumeStage_UnregisteredStage(t *testing.T) {
	r := New()
	h := r.RegisterMultiSlot(ExitStages, noop())

	if _, ok := r.ConsumeStage(h, StageStartPlayback); ok {
		t.Errorf("%s - consumed unregistered stage", registryTestPrefix)
	}
	if _, ok := r.ConsumeStage(h, StageUnknown); ok {
		t.Errorf("%s - consumed unknown stage", registryTestPrefix)
	}
	if got := len(r.PendingStages(h)); got != len(ExitStages) {
		t.Errorf("%s - pending stages = %d, want %d", registryTestPrefix, got, len(ExitStages))
	}
}

func TestPersistent_LookupAndOverwrite(t *testing.T) {
	r := New()
	first := noop()
	second := noop()

	r.RegisterPersistent("providerChanged", first)
	for i := 0; i < 3; i++ {
		c, ok := r.Lookup("providerChanged")
		if !ok || c != first {
			t.Fatalf("%s - lookup %d returned wrong listener", registryTestPrefix, i)
		}
	}

	r.RegisterPersistent("providerChanged", second)
	if c, _ := r.Lookup("providerChanged"); c != second {
		t.Errorf("%s - overwrite did not replace listener", registryTestPrefix)
	}
	if st := r.Outstanding(); st.Persistent != 1 || st.Total() != 0 {
		t.Errorf("%s - unexpected stats %+v", registryTestPrefix, st)
	}

	if !r.RemovePersistent("providerChanged") {
		t.Errorf("%s - remove failed", registryTestPrefix)
	}
	if _, ok := r.Lookup("providerChanged"); ok {
		t.Errorf("%s - listener still present after remove", registryTestPrefix)
	}
}

func TestReset(t *testing.T) {
	r := New()
	r.Register(noop())
	r.RegisterMultiSlot(ViewStages, noop())
	r.RegisterPersistent("engagement", noop())

	st := r.Outstanding()
	if st.OneShot != 1 || st.MultiSlot != 1 || st.Slots != 4 || st.Persistent != 1 {
		t.Fatalf("%s - unexpected stats before reset %+v", registryTestPrefix, st)
	}

	r.Reset()
	if st := r.Outstanding(); st != (Stats{}) {
		t.Errorf("%s - stats after reset %+v", registryTestPrefix, st)
	}
	if h := r.Register(noop()); h != 0 {
		t.Errorf("%s - handle after reset = %d, want 0", registryTestPrefix, h)
	}
}

func TestTyped_DecodesAtBind(t *testing.T) {
	decoded := 0
	var got string
	c := Typed(func(resp *envelope.Response) string {
		decoded++
		return resp.Field("playerName").String()
	}, func(name string) { got = name })

	resp, err := envelope.ParseResponse([]byte(`{"class":"AuthV4","method":"getPlayerInfo","playerName":"kim"}`))
	if err != nil {
		t.Fatalf("%s - parse failed: %v", registryTestPrefix, err)
	}
	inv := c.Bind(resp)
	if decoded != 1 {
		t.Errorf("%s - decode ran %d times at bind, want 1", registryTestPrefix, decoded)
	}
	if got != "" {
		t.Errorf("%s - callback ran before invocation", registryTestPrefix)
	}
	inv()
	if got != "kim" {
		t.Errorf("%s - got %q, want kim", registryTestPrefix, got)
	}
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		wire string
		want Stage
	}{
		{"OPEN", StageOpen},
		{"close", StageClose},
		{"Start_Playback", StageStartPlayback},
		{"FINISH_PLAYBACK", StageFinishPlayback},
		{"EXIT", StageExit},
		{"GOBACK", StageGoBack},
		{"", StageUnknown},
		{"SPIN", StageUnknown},
	}
	for _, tt := range tests {
		if got := ParseStage(tt.wire); got != tt.want {
			t.Errorf("%s - ParseStage(%q) = %q, want %q", registryTestPrefix, tt.wire, got, tt.want)
		}
	}
	if StageStartPlayback.Wire() != "START_PLAYBACK" {
		t.Errorf("%s - unexpected wire form %q", registryTestPrefix, StageStartPlayback.Wire())
	}
}

func TestCancel(t *testing.T) {
	r := New()
	one := r.Register(noop())
	multi := r.RegisterMultiSlot(ViewStages, noop())

	if !r.Cancel(multi) {
		t.Fatalf("%s - Cancel(multi) = false", registryTestPrefix)
	}
	if _, ok := r.ConsumeStage(multi, StageClose); ok {
		t.Errorf("%s - cancelled multi-slot handle still consumable", registryTestPrefix)
	}
	if r.Cancel(multi) {
		t.Errorf("%s - second Cancel reported true", registryTestPrefix)
	}
	if _, ok := r.Consume(one); !ok {
		t.Errorf("%s - unrelated handle affected by Cancel", registryTestPrefix)
	}
}
