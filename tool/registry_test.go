package tool

import "testing"

func bashTool(name string) ToolDefinition {
	return ToolDefinition{
		Name:    name,
		Runtime: RuntimeBash,
		Command: "true",
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(DuplicateReject)
	if err := r.Register(bashTool("alpha")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(bashTool("alpha")); err == nil {
		t.Fatal("Register() error = nil, want duplicate error")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryOverwritePolicy(t *testing.T) {
	r := NewRegistry(DuplicateOverwrite)
	first := bashTool("alpha")
	second := bashTool("alpha")
	second.Description = "second"
	if err := r.Register(first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(second); err != nil {
		t.Fatalf("Register() overwrite error = %v", err)
	}
	got, ok := r.Lookup("alpha")
	if !ok || got.Description != "second" {
		t.Fatalf("Lookup() = %+v, want overwritten definition", got)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryRejectsInvalidDefinition(t *testing.T) {
	r := NewRegistry(DuplicateReject)
	def := bashTool("broken")
	def.Command = ""
	if err := r.Register(def); err == nil {
		t.Fatal("Register() error = nil, want validation error")
	}
}

func TestRegisterManifestAllOrNothing(t *testing.T) {
	r := NewRegistry(DuplicateReject)
	if err := r.Register(bashTool("existing")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m := NewManifest("batch")
	m.Tools = []ToolDefinition{bashTool("fresh"), bashTool("existing")}
	if err := r.RegisterManifest(m); err == nil {
		t.Fatal("RegisterManifest() error = nil, want duplicate error")
	}
	// The clash must leave the registry untouched, including the
	// non-clashing tool from the same manifest.
	if _, ok := r.Lookup("fresh"); ok {
		t.Fatal("fresh registered despite manifest failure")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryListOrderAndUnregister(t *testing.T) {
	r := NewRegistry(DuplicateReject)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(bashTool(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	list := r.List()
	if len(list) != 3 || list[0].Name != "charlie" || list[2].Name != "bravo" {
		t.Fatalf("List() order = %v, want registration order", list)
	}

	if !r.Unregister("alpha") {
		t.Fatal("Unregister(alpha) = false, want true")
	}
	if r.Unregister("alpha") {
		t.Fatal("Unregister(alpha) twice = true, want false")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "bravo" || names[1] != "charlie" {
		t.Fatalf("Names() = %v, want sorted [bravo charlie]", names)
	}
}
