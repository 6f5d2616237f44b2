package evaluator

import (
	"strings"

	"github.com/jonathan/interview-engine/internal/types"
)

// Heuristic scoring stays inside [40,70]: without the LLM we can flag
// weakness but must never assert mastery.
const (
	heuristicFloor = 40
	heuristicCeil  = 70

	// shortAnswerWords is the length below which an answer is treated as
	// an explanation gap.
	shortAnswerWords = 40
)

var structureMarkers = []string{
	"first", "second", "third", "finally", "in summary",
	"for example", "because", "therefore", "however",
	"1.", "2.", "- ",
}

// heuristicEvaluate is the deterministic fallback evaluator. Scores derive
// from answer length bands, skill-tag keyword coverage, and the presence of
// structure markers.
func heuristicEvaluate(q types.Question, a types.Answer) types.Evaluation {
	text := strings.ToLower(a.Text)
	words := len(strings.Fields(text))
	coverage := skillCoverage(q.SkillTags, text)
	markers := countMarkers(text)

	lengthScore := lengthBand(words)
	coverageScore := clampHeuristic(heuristicFloor + 30*coverage)
	structureScore := clampHeuristic(45 + 5*float64(markers))

	rubric := types.Rubric{
		Correctness:  clampHeuristic((lengthScore + coverageScore) / 2),
		Depth:        lengthScore,
		Clarity:      clampHeuristic((lengthScore + structureScore) / 2),
		Structure:    structureScore,
		Completeness: coverageScore,
	}

	gap := types.GapNone
	switch {
	case words < shortAnswerWords:
		gap = types.GapExplanation
	case coverage == 0:
		gap = types.GapKnowledge
	}

	ev := types.Evaluation{
		OverallScore: WeightedOverall(rubric),
		Rubric:       rubric,
		GapKind:      gap,
		Feedback: "Automated assessment: the interview assistant was temporarily " +
			"unavailable, so this answer was scored by length, keyword coverage " +
			"and structure only. Treat these scores as provisional.",
	}
	if words < shortAnswerWords {
		ev.Weaknesses = append(ev.Weaknesses, "answer is too brief to demonstrate understanding")
	}
	if coverage == 0 && len(q.SkillTags) > 0 {
		ev.Weaknesses = append(ev.Weaknesses, "answer does not mention the skills the question targets")
	}
	if markers >= 2 {
		ev.Strengths = append(ev.Strengths, "answer shows organized structure")
	}
	ev.NeedsFollowUp = ev.Rubric.Min() < followUpScoreBar
	return ev
}

// lengthBand maps word count onto a score band inside [40,70].
func lengthBand(words int) float64 {
	switch {
	case words < 30:
		return 42
	case words < 80:
		return 50
	case words < 150:
		return 58
	}
	return 64
}

// skillCoverage returns the fraction of skill tags mentioned in the answer.
func skillCoverage(tags []string, lowerText string) float64 {
	if len(tags) == 0 {
		return 0
	}
	hit := 0
	for _, tag := range tags {
		needle := strings.ToLower(strings.ReplaceAll(tag, "-", " "))
		if needle == "" {
			continue
		}
		if strings.Contains(lowerText, needle) ||
			strings.Contains(lowerText, strings.ToLower(tag)) {
			hit++
		}
	}
	return float64(hit) / float64(len(tags))
}

func countMarkers(lowerText string) int {
	n := 0
	for _, m := range structureMarkers {
		if strings.Contains(lowerText, m) {
			n++
		}
	}
	return n
}

func clampHeuristic(v float64) float64 {
	if v < heuristicFloor {
		return heuristicFloor
	}
	if v > heuristicCeil {
		return heuristicCeil
	}
	return v
}
