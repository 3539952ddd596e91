package profile

import (
	"testing"

	"github.com/AnyUserName/imgpress/internal/encoder"
)

func TestGetFallsBackToWeb(t *testing.T) {
	p := Get("does-not-exist")
	if p.Name != "does-not-exist" {
		t.Errorf("name: got %q", p.Name)
	}
	if p.Quality != encoder.DefaultQuality || p.MaxWidth != 1920 {
		t.Errorf("fallback params: got %+v", p)
	}
	if Get("").Name != Default {
		t.Errorf("empty name should select %q", Default)
	}
	if _, ok := Lookup("does-not-exist"); ok {
		t.Error("Lookup found unknown profile")
	}
}

func TestNamesSorted(t *testing.T) {
	got := Names()
	want := []string{"archive", "thumbnail", "web", "web-hq"}
	if len(got) != len(want) {
		t.Fatalf("names: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBoxRetina(t *testing.T) {
	w, h := Get("web-hq").Box()
	if w != 2560 || h != 2560 {
		t.Errorf("web-hq box: got %dx%d", w, h)
	}
	w, h = Get("thumbnail").Box()
	if w != 320 || h != 320 {
		t.Errorf("thumbnail box: got %dx%d", w, h)
	}
}

func TestApply(t *testing.T) {
	var req encoder.Request
	Get("thumbnail").Apply(&req)
	if req.Quality != 75 || req.Effort != 4 {
		t.Errorf("quality/effort: got %d/%d", req.Quality, req.Effort)
	}
	if req.Resize == nil || req.Resize.Fit != encoder.FitCover || req.Resize.MaxWidth != 320 {
		t.Errorf("resize: got %+v", req.Resize)
	}
	if req.Enhance == nil || req.Enhance.Sharpen != 0.5 {
		t.Errorf("enhance: got %+v", req.Enhance)
	}

	req = encoder.Request{Quality: 60, Resize: &encoder.Resize{MaxWidth: 100}}
	Get("web").Apply(&req)
	if req.Quality != 60 || req.Resize.MaxWidth != 100 {
		t.Errorf("caller values overwritten: %+v", req)
	}

	req = encoder.Request{}
	Get("archive").Apply(&req)
	if !req.PreserveOriginalSize || req.Resize != nil || req.Enhance != nil {
		t.Errorf("archive: got %+v", req)
	}
}
