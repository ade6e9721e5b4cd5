package brain

import "strings"

// DefaultPersonaPrompt steers the assistant when the session carries no
// specialist persona.
const DefaultPersonaPrompt = "You are a helpful AI medical assistant. Provide concise, accurate medical information."

const appKnowledge = `

APP KNOWLEDGE BASE:
- You are the "AI Healthsphere" assistant.
- USAGE: Users can start a voice consultation by clicking "Start Call". You will ask for their name, age and symptoms.
- HISTORY: Users can view their past consultations in the "History" section of the dashboard.
- REPORTS: After a consultation, a medical report is generated. Users can view it from the "History" section or immediately after the call.
- NAVIGATION: The app has a Dashboard (home), History page, and Profile settings.
- If a user asks "how to use", explain the "Start Call" button and the consultation process.
- If a user asks "where is my report", direct them to the History page.
`

const medicalDisclaimer = " Remember that you are not a replacement for professional medical advice, diagnosis, or treatment."

// BuildSystemPrompt assembles the system message for a reply request from the
// session's persona, the application knowledge base and the safety suffix.
func BuildSystemPrompt(personaPrompt string) string {
	persona := strings.TrimSpace(personaPrompt)
	if persona == "" {
		persona = DefaultPersonaPrompt
	}
	return persona + appKnowledge + medicalDisclaimer
}
