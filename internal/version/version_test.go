package version_test

import (
	"strings"
	"testing"

	v "github.com/keithlinneman/gethead/internal/version"
)

func TestVCSDirtyTriState(t *testing.T) {
	t.Cleanup(func() { v.VCSDirty = nil })

	// test binaries carry no vcs settings, so the ldflags value is all there is
	v.VCSDirty = nil
	if info := v.Get(); info.VCSDirty != nil {
		t.Fatalf("VCSDirty = %v, want nil", *info.VCSDirty)
	}

	for _, want := range []bool{true, false} {
		val := want
		v.VCSDirty = &val
		info := v.Get()
		if info.VCSDirty == nil || *info.VCSDirty != want || info.Dirty() != want {
			t.Fatalf("VCSDirty = %v, want %v", info.VCSDirty, want)
		}
	}
}

func TestGet_AppName(t *testing.T) {
	if got := v.Get().AppName; got != v.AppName {
		t.Fatalf("AppName = %q", got)
	}
}

func TestInfo_String(t *testing.T) {
	s := v.Info{AppName: "gethead", Version: "v1.0.0", Commit: "abc"}.String()
	if !strings.HasPrefix(s, "gethead v1.0.0 (commit=abc,") || !strings.Contains(s, "dirty=false") {
		t.Fatalf("String() = %q", s)
	}
}
