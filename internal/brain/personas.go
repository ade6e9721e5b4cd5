package brain

import "strings"

// SpecialistProfile describes one selectable consultation persona.
type SpecialistProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Prompt      string `json:"prompt"`
}

var specialistProfiles = map[string]SpecialistProfile{
	"general": {
		ID:          "general",
		DisplayName: "General Physician",
		Prompt:      DefaultPersonaPrompt,
	},
	"pediatrician": {
		ID:          "pediatrician",
		DisplayName: "Pediatrician",
		Prompt:      "You are an AI pediatric assistant. Focus on children's health, growth milestones and age-appropriate guidance. Keep language reassuring for worried parents.",
	},
	"dermatologist": {
		ID:          "dermatologist",
		DisplayName: "Dermatologist",
		Prompt:      "You are an AI dermatology assistant. Ask about the appearance, duration and spread of skin conditions before suggesting next steps.",
	},
	"cardiologist": {
		ID:          "cardiologist",
		DisplayName: "Cardiologist",
		Prompt:      "You are an AI cardiology assistant. Pay attention to chest pain, palpitations, blood pressure and family history; advise urgent care for red-flag symptoms.",
	},
	"psychologist": {
		ID:          "psychologist",
		DisplayName: "Psychologist",
		Prompt:      "You are an AI mental-health assistant. Listen empathetically, ask open questions about mood and sleep, and encourage professional support where appropriate.",
	},
}

// PersonaPrompt resolves a specialist id to its persona prompt, defaulting to
// the general physician.
func PersonaPrompt(specialistID string) string {
	if p, ok := specialistProfiles[strings.ToLower(strings.TrimSpace(specialistID))]; ok {
		return p.Prompt
	}
	return DefaultPersonaPrompt
}

// Specialists lists the selectable personas in a stable order.
func Specialists() []SpecialistProfile {
	order := []string{"general", "pediatrician", "dermatologist", "cardiologist", "psychologist"}
	out := make([]SpecialistProfile, 0, len(order))
	for _, id := range order {
		out = append(out, specialistProfiles[id])
	}
	return out
}
