package services

import "regexp"

const (
	GroupRole   = "ROLE"
	GroupSystem = "SYSTEM"
)

// Entity is a domain token heuristically extracted from requirement text and
// used to parameterize synthesized test steps.
type Entity struct {
	Word  string `json:"word"`
	Group string `json:"group"`
}

var (
	rolePattern   = regexp.MustCompile(`(?i)\b(admin|user|manager|system)\b`)
	systemPattern = regexp.MustCompile(`(?i)\b(database|api|server|interface)\b`)
)

// EntityExtractor matches case-insensitive whole-word occurrences of a fixed
// vocabulary. It is pure and cannot fail; duplicates are kept in occurrence
// order and selection policy is left to consumers.
type EntityExtractor struct{}

func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

func (ee *EntityExtractor) Extract(text string) []Entity {
	entities := []Entity{}

	for _, word := range rolePattern.FindAllString(text, -1) {
		entities = append(entities, Entity{Word: word, Group: GroupRole})
	}
	for _, word := range systemPattern.FindAllString(text, -1) {
		entities = append(entities, Entity{Word: word, Group: GroupSystem})
	}

	return entities
}
