package strata

import (
	"errors"
	"testing"
)

func TestNewStratumOrderCommonStrata(t *testing.T) {
	order := NewStratumOrder()
	want := []string{StratumUser, StratumOverride, StratumDefinition, StratumUnderride, StratumURLRecord, StratumDefaults}
	entries := order.Entries()
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].Name, name)
		}
	}
	defaults, _ := order.Lookup(StratumDefaults)
	user, _ := order.Lookup(StratumUser)
	if defaults.Priority != PriorityDefaultBand || user.Priority != PriorityUserBand {
		t.Fatalf("unexpected band priorities %+v %+v", defaults, user)
	}
}

func TestStratumOrderLoadStrataStackInRegistrationOrder(t *testing.T) {
	order := NewStratumOrder()
	first, err := order.AddLoadStratum("wms-capabilities")
	if err != nil {
		t.Fatalf("AddLoadStratum error: %v", err)
	}
	second, err := order.AddLoadStratum("feature-info")
	if err != nil {
		t.Fatalf("AddLoadStratum error: %v", err)
	}
	if second.Priority <= first.Priority {
		t.Fatalf("later load stratum must outrank earlier: %+v %+v", first, second)
	}
	definition, _ := order.Lookup(StratumDefinition)
	urlRecord, _ := order.Lookup(StratumURLRecord)
	if !(urlRecord.Priority < first.Priority && second.Priority < definition.Priority) {
		t.Fatalf("load band must sit between defaults and definitions")
	}

	sorted := order.SortNames([]string{StratumDefaults, "feature-info", "unknown", StratumUser, "wms-capabilities"})
	want := []string{StratumUser, "feature-info", "wms-capabilities", StratumDefaults, "unknown"}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("SortNames = %v, want %v", sorted, want)
		}
	}
}

func TestStratumOrderDuplicates(t *testing.T) {
	order := NewStratumOrder()
	again, err := order.Add(StratumUser, RoleUser)
	if err != nil {
		t.Fatalf("re-adding with the same role must be a no-op: %v", err)
	}
	if existing, _ := order.Lookup(StratumUser); existing != again {
		t.Fatalf("expected existing entry, got %+v", again)
	}
	if _, err := order.Add(StratumUser, RoleLoad); !errors.Is(err, ErrDuplicateStratumName) {
		t.Fatalf("expected ErrDuplicateStratumName, got %v", err)
	}
	if _, err := order.Add(" ", RoleLoad); !errors.Is(err, ErrStratumNameRequired) {
		t.Fatalf("expected ErrStratumNameRequired, got %v", err)
	}
	if _, err := order.Add("x", RoleUnknown); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestStratumOrderPriorityTiesFavourLatest(t *testing.T) {
	order := NewStratumOrder()
	if _, err := order.AddWithPriority("a", RoleLoad, 2500); err != nil {
		t.Fatalf("AddWithPriority error: %v", err)
	}
	if _, err := order.AddWithPriority("b", RoleLoad, 2500); err != nil {
		t.Fatalf("AddWithPriority error: %v", err)
	}
	if sorted := order.SortNames([]string{"a", "b"}); sorted[0] != "b" {
		t.Fatalf("expected most recent registration first, got %v", sorted)
	}
}

func TestParseStratumRole(t *testing.T) {
	cases := map[string]StratumRole{
		"defaults":    RoleDefault,
		" Load ":      RoleLoad,
		"underride":   RoleUnderride,
		"definition":  RoleDefinition,
		"override":    RoleOverride,
		"USER":        RoleUser,
		"nonexistent": RoleUnknown,
	}
	for in, want := range cases {
		if got := ParseStratumRole(in); got != want {
			t.Fatalf("ParseStratumRole(%q) = %v, want %v", in, got, want)
		}
	}
	if RoleOverride.String() != "override" {
		t.Fatalf("unexpected role string %q", RoleOverride.String())
	}
}
