package incremental

import (
	"testing"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
)

func TestFingerprintChangesWithEveryInput(t *testing.T) {
	base := Source{
		BundlePath: "in/a.bundle",
		Entry: bundle.ObjectEntry{
			PathID: 7, Type: bundle.TypeTextAsset, Container: "Assets/a", Name: "b", Offset: 64, Length: 3,
		},
		Payload: []byte("abc"),
	}
	want := Fingerprint(base)
	if want != Fingerprint(base) {
		t.Fatal("fingerprint is not deterministic")
	}
	if len(want) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(want))
	}

	mutations := map[string]func(*Source){
		"bundle path": func(s *Source) { s.BundlePath = "in/b.bundle" },
		"path id":     func(s *Source) { s.Entry.PathID = 8 },
		"type":        func(s *Source) { s.Entry.Type = bundle.TypeTexture2D },
		"container":   func(s *Source) { s.Entry.Container = "Assets/b" },
		"name":        func(s *Source) { s.Entry.Name = "c" },
		"offset":      func(s *Source) { s.Entry.Offset = 65 },
		"length":      func(s *Source) { s.Entry.Length = 4 },
		"payload":     func(s *Source) { s.Payload = []byte("abd") },
		"boundary":    func(s *Source) { s.Entry.Container, s.Entry.Name = "Assets/", "ab" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := base
			mutate(&changed)
			if Fingerprint(changed) == want {
				t.Fatalf("fingerprint unchanged after %s changed", name)
			}
		})
	}
}
