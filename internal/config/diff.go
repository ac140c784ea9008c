package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	AgentsChanged   bool        // true if any inline agent profile changed
	AgentChanges    []AgentDiff // per-agent diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// AgentDiff describes what changed for a single agent profile between two
// configs.
type AgentDiff struct {
	ID                 string
	InstructionChanged bool // objective, questions, knowledge base, tone, or first question
	VoiceChanged       bool
	AnalysisChanged    bool // custom analysis requirements
	Added              bool
	Removed            bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build agent lookup maps keyed by ID.
	oldAgents := make(map[string]int, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].ID] = i
	}
	newAgents := make(map[string]int, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].ID] = i
	}

	for id, i := range newAgents {
		j, existed := oldAgents[id]
		if !existed {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Added: true})
			continue
		}
		oldP, newP := &old.Agents[j], &new.Agents[i]
		ad := AgentDiff{ID: id}
		if oldP.Objective != newP.Objective ||
			oldP.FirstQuestion != newP.FirstQuestion ||
			oldP.ContextAndTone != newP.ContextAndTone ||
			oldP.KnowledgeBase != newP.KnowledgeBase ||
			oldP.Language != newP.Language ||
			oldP.Name != newP.Name ||
			!slices.Equal(oldP.Questions, newP.Questions) {
			ad.InstructionChanged = true
		}
		if oldP.Voice != newP.Voice {
			ad.VoiceChanged = true
		}
		if !slices.Equal(oldP.CustomAnalysis, newP.CustomAnalysis) {
			ad.AnalysisChanged = true
		}
		if ad.InstructionChanged || ad.VoiceChanged || ad.AnalysisChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
		}
	}

	for id := range oldAgents {
		if _, still := newAgents[id]; !still {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Removed: true})
		}
	}

	d.AgentsChanged = len(d.AgentChanges) > 0
	return d
}
