package services

import "testing"

func TestExtractEntities(t *testing.T) {
	ee := NewEntityExtractor()

	text := "The Admin updates records while the system writes to the database through the API."
	entities := ee.Extract(text)

	var roles, systems []string
	for _, entity := range entities {
		switch entity.Group {
		case GroupRole:
			roles = append(roles, entity.Word)
		case GroupSystem:
			systems = append(systems, entity.Word)
		}
	}

	if len(roles) != 2 {
		t.Fatalf("Expected 2 role entities, got %d (%v)", len(roles), roles)
	}
	if roles[0] != "Admin" {
		t.Errorf("Expected first role 'Admin', got '%s'", roles[0])
	}
	if len(systems) != 2 {
		t.Errorf("Expected 2 system entities, got %d (%v)", len(systems), systems)
	}
}

func TestExtractEntitiesKeepsDuplicates(t *testing.T) {
	ee := NewEntityExtractor()

	entities := ee.Extract("admin admin ADMIN")
	if len(entities) != 3 {
		t.Errorf("Expected 3 entities (no dedup), got %d", len(entities))
	}
	for _, entity := range entities {
		if entity.Group != GroupRole {
			t.Errorf("Expected ROLE group, got %s", entity.Group)
		}
	}
}

func TestExtractEntitiesWholeWordOnly(t *testing.T) {
	ee := NewEntityExtractor()

	// Substrings must not match.
	entities := ee.Extract("administrator databases apiary")
	if len(entities) != 0 {
		t.Errorf("Expected no entities for substring matches, got %v", entities)
	}
}

func TestExtractEntitiesEmptyInput(t *testing.T) {
	ee := NewEntityExtractor()

	entities := ee.Extract("")
	if entities == nil {
		t.Error("Expected empty slice, got nil")
	}
	if len(entities) != 0 {
		t.Errorf("Expected no entities, got %d", len(entities))
	}
}
