package model

import (
	"strings"
	"testing"
)

func TestSubmissionHints_NilVsBlank(t *testing.T) {
	sub := DeviceSpecSubmission{
		WorldConstraints: []string{},
		LogicOutline:     []string{"a", "b"},
	}
	h := sub.Hints()

	if !h.Set[FieldWorldConstraints] || !h.Blank[FieldWorldConstraints] {
		t.Fatalf("empty non-nil should be set+blank: %+v", h)
	}
	if !h.Set[FieldLogicOutline] || h.Blank[FieldLogicOutline] {
		t.Fatalf("populated field should be set, not blank: %+v", h)
	}
	if h.Set[FieldRiskRegister] || h.Blank[FieldRiskRegister] {
		t.Fatalf("nil field should carry no hint: %+v", h)
	}
}

func TestVerdictValid(t *testing.T) {
	for _, v := range []Verdict{VerdictAccept, VerdictPartial, VerdictReject, VerdictReviewRequired} {
		if !v.Valid() {
			t.Fatalf("%s should be valid", v)
		}
	}
	if Verdict("MAYBE").Valid() {
		t.Fatalf("unknown verdict accepted")
	}
}

func TestAppendUnique(t *testing.T) {
	got := AppendUnique([]string{"a"}, " a ", "", "b", "a", "b")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestNewID(t *testing.T) {
	id := NewID("spec")
	if !strings.HasPrefix(id, "spec_") || len(id) != len("spec_")+20 {
		t.Fatalf("id %q", id)
	}
	if NewID("spec") == id {
		t.Fatalf("ids should be unique")
	}
}

func TestStrongerTier(t *testing.T) {
	if got := StrongerTier(TierSafeAuto, TierNeedsConfirm); got != TierNeedsConfirm {
		t.Fatalf("got %s", got)
	}
	if got := StrongerTier(TierBlocked, TierNeedsConfirm); got != TierBlocked {
		t.Fatalf("got %s", got)
	}
}

func TestWorldPatchCommands_MixedTypes(t *testing.T) {
	wp := WorldPatch{MC: map[string]any{"commands": []any{"setblock 0 64 0 stone", 42, "fill 0 64 0 1 64 1 air"}}}
	cmds := wp.Commands()
	if len(cmds) != 2 {
		t.Fatalf("commands: %v", cmds)
	}
	wp = WorldPatch{MC: map[string]any{"commands": []string{"say hi"}}}
	if got := wp.Commands(); len(got) != 1 || got[0] != "say hi" {
		t.Fatalf("string slice: %v", got)
	}
}
