// Package agent defines the interview personas a user can talk to. A
// [Profile] is the full declarative configuration for one persona: who it
// is, what it wants to find out, the questions it works through, and the
// voice it speaks with. Profiles can be seeded from config, stored in
// PostgreSQL, or both; [BuildInstruction] turns one into the system
// instruction handed to the live model.
package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Profile is the full declarative configuration for one conversational
// persona.
type Profile struct {
	// ID is the unique identifier for this profile.
	ID string `yaml:"id" json:"id"`

	// Name is the persona's display name (e.g., "Supervisor").
	Name string `yaml:"name" json:"name"`

	// Language is the default conversation language.
	Language string `yaml:"language" json:"language"`

	// Objective is what the persona is trying to learn from the user.
	Objective string `yaml:"objective" json:"objective"`

	// FirstQuestion is the persona's opening line, spoken immediately.
	FirstQuestion string `yaml:"first_question" json:"first_question"`

	// ContextAndTone is a free-text description of character and register.
	ContextAndTone string `yaml:"context_and_tone" json:"context_and_tone"`

	// Questions is the checklist the persona works through, each used once.
	Questions []string `yaml:"questions" json:"questions"`

	// KnowledgeBase is the persona's source of truth for factual answers.
	KnowledgeBase string `yaml:"knowledge_base" json:"knowledge_base"`

	// Voice is the prebuilt voice name used for speech synthesis.
	Voice string `yaml:"voice" json:"voice"`

	// CustomAnalysis lists extra requirements for the post-session report.
	CustomAnalysis []string `yaml:"custom_analysis" json:"custom_analysis"`

	// CreatedAt is the time the profile was first persisted.
	CreatedAt time.Time `json:"created_at" yaml:"-"`

	// UpdatedAt is the time the profile was last modified.
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks that the profile is complete enough to run a session.
func (p *Profile) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("agent: id must not be empty"))
	}
	if p.Name == "" {
		errs = append(errs, errors.New("agent: name must not be empty"))
	}
	if p.Objective == "" {
		errs = append(errs, errors.New("agent: objective must not be empty"))
	}
	return errors.Join(errs...)
}

// DefaultVoice is used when a profile does not name one.
const DefaultVoice = "Charon"

// BuildInstruction renders the system instruction for a session with this
// persona. The audio protocol sections keep the live model from reacting to
// background noise and from racing through its lines.
func BuildInstruction(p Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are Vani, a specialized AI agent acting ONLY as: %s.\n\n", p.Name)

	b.WriteString("AUDIO FOCUS PROTOCOL (STRICT):\n")
	b.WriteString("1. Focus exclusively on the primary speaker's voice. Ignore background chatter, distant voices, and environmental noise.\n")
	b.WriteString("2. If you hear faint or incoherent audio that does not sound like a direct address, treat it as silence and do not respond.\n")
	b.WriteString("3. Only acknowledge clearly spoken words. Never interpret background sounds as commands.\n\n")

	b.WriteString("VOCAL DELIVERY PROTOCOL:\n")
	b.WriteString("1. Speak at a steady, moderate pace. Do not rush.\n")
	b.WriteString("2. Insert a brief natural pause between sentences.\n")
	b.WriteString("3. Pronounce every word distinctly.\n\n")

	b.WriteString("CONVERSATION DYNAMICS:\n")
	b.WriteString("1. Never ask the same question twice; move through your checklist sequentially.\n")
	b.WriteString("2. When the user wanders off-topic, pivot back with a fresh phrase every time.\n")
	b.WriteString("3. Use the knowledge base as your source of truth.\n")
	b.WriteString("4. Keep responses to at most two sentences.\n\n")

	fmt.Fprintf(&b, "OBJECTIVE:\n%s\n\n", p.Objective)

	if p.KnowledgeBase != "" {
		fmt.Fprintf(&b, "KNOWLEDGE BASE:\n%s\n\n", p.KnowledgeBase)
	}
	if len(p.Questions) > 0 {
		b.WriteString("CHECKLIST (USE EACH ONCE):\n")
		for _, q := range p.Questions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}
	if p.Language != "" {
		fmt.Fprintf(&b, "LANGUAGE: %s (default)\n", p.Language)
	}
	if p.ContextAndTone != "" {
		fmt.Fprintf(&b, "TONE: %s\n", p.ContextAndTone)
	}
	if p.FirstQuestion != "" {
		fmt.Fprintf(&b, "\nSTARTING LINE:\n%q\n", p.FirstQuestion)
	}

	return b.String()
}

// StartPrompt builds the synthetic instruction sent the moment a session
// opens, so the agent speaks first. The persona's opening line is included
// when it has one.
func StartPrompt(p Profile) string {
	if p.FirstQuestion == "" {
		return "(The session has just started. Greet the user at a moderate pace and open the conversation.)"
	}
	return fmt.Sprintf("(The session has just started. Greet the user at a moderate pace, opening with: %q)", p.FirstQuestion)
}

// SilencePrompt is the synthetic instruction sent when the user stops
// talking for too long. The model receives it as text and re-engages in its
// own voice.
const SilencePrompt = "(The user has been silent for a while. Gently re-engage them: briefly recap where you were and ask the next question on your checklist.)"

// DefaultProfiles returns the personas seeded into an empty store.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ID:            "default_supervisor",
			Name:          "Supervisor",
			Language:      "English",
			Objective:     "Uncover hidden blockers, celebrate wins, and assess morale.",
			FirstQuestion: "Hello! I'm your supervisor. To get started, could you please tell me your name and how your week has been going so far?",
			ContextAndTone: "You are a supportive yet professional Supervisor. " +
				"Tone: Collaborative, mentorship-focused, solution-oriented.",
			Questions: []string{
				"How confident do you feel about achieving your targets this month?",
				"What were the main challenges you faced recently?",
				"How can the organization support you better?",
			},
			KnowledgeBase: "Company Policies: We support remote work for 2 days a week. " +
				"Annual leave is 20 days. Mental health support is available via the HR portal.",
			Voice: "Charon",
		},
		{
			ID:            "default_teacher",
			Name:          "Teacher",
			Language:      "Hindi",
			Objective:     "Discuss student progress, homework habits, and emotional well-being.",
			FirstQuestion: "नमस्ते! मैं आपके बच्चे का शिक्षक हूँ। बातचीत शुरू करने के लिए, क्या आप मुझे अपना नाम बता सकते हैं?",
			ContextAndTone: "You are a caring Teacher speaking to a parent. " +
				"Tone: Nurturing, patient, clear.",
			Questions: []string{
				"How has the student been managing their homework schedule?",
				"Have you noticed any particular subjects they struggle with?",
				"Is there anything happening at home that might affect their focus?",
			},
			KnowledgeBase: "School opens at 8:00 AM. Parent-teacher meetings happen quarterly. " +
				"The math curriculum this term covers geometry.",
			Voice: "Kore",
		},
	}
}
