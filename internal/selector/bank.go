package selector

import (
	"fmt"
	"strings"

	"github.com/jonathan/interview-engine/internal/types"
)

// The template bank backs degraded mode: deterministic questions keyed by
// (interview type, difficulty), parameterized by topic.

var technicalTemplates = map[int]string{
	1: "Explain what %s is and where you would use it. Give a simple example.",
	2: "Describe how %s works under the hood and name one common pitfall when using it.",
	3: "Walk through how you would apply %s to solve a concrete problem from a past project, including the tradeoffs you considered.",
	4: "Compare %s with an alternative approach for the same problem. When does %s become the wrong choice, and why?",
	5: "Design a production system that depends critically on %s. Discuss failure modes, performance limits, and how you would test it.",
}

var behavioralTemplates = map[int]string{
	1: "Tell me about a time you worked with %s. What was your role?",
	2: "Describe a situation involving %s where things did not go as planned. What did you do?",
	3: "Tell me about the most challenging experience you have had with %s. How did you handle it, and what was the outcome?",
	4: "Describe a time you disagreed with a teammate or stakeholder about %s. How did you resolve it?",
	5: "Tell me about a time you led others through a difficult situation involving %s. What would you do differently now?",
}

var systemDesignTemplates = map[int]string{
	1: "What are the main components you would expect in a system built around %s?",
	2: "Sketch a basic design for a service that provides %s. What does the data model look like?",
	3: "Design a service for %s that must handle moderate scale. Walk through reads, writes, and storage choices.",
	4: "Design %s for high availability. How do you handle partial failures and data consistency?",
	5: "Design %s at global scale. Cover sharding, replication, latency budgets, and operational concerns.",
}

// BankQuestion returns the deterministic template question for the topic
// and difficulty. Difficulty is clamped into [1,5].
func BankQuestion(topic string, difficulty int, it types.InterviewType) types.Question {
	if difficulty < minDifficulty {
		difficulty = minDifficulty
	}
	if difficulty > maxDifficulty {
		difficulty = maxDifficulty
	}
	if topic == "" {
		topic = genericTopic(it)
	}

	templates := technicalTemplates
	switch it {
	case types.InterviewBehavioral:
		templates = behavioralTemplates
	case types.InterviewSystemDesign:
		templates = systemDesignTemplates
	}

	tmpl := templates[difficulty]
	var text string
	if strings.Count(tmpl, "%s") == 2 {
		text = fmt.Sprintf(tmpl, topic, topic)
	} else {
		text = fmt.Sprintf(tmpl, topic)
	}

	return types.Question{
		Text:       text,
		Topic:      topic,
		SkillTags:  []string{topic},
		Difficulty: difficulty,
	}
}
