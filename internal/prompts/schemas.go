package prompts

// JSON Schemas the LLM responses must conform to. These are the same
// documents handed to the gateway (for degraded-mode synthesis) and to the
// schemas package (for validation and repair).

// QuestionSchema constrains question-generation responses
// (FirstQuestion, NextQuestion and FollowUp specs).
const QuestionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "question",
  "type": "object",
  "required": ["topic", "skillTags", "difficulty", "text"],
  "properties": {
    "topic": {"type": "string", "minLength": 1},
    "skillTags": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "difficulty": {"type": "integer", "minimum": 1, "maximum": 5},
    "text": {"type": "string", "minLength": 1}
  }
}`

// EvaluationSchema constrains answer-evaluation responses.
const EvaluationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "evaluation",
  "type": "object",
  "required": ["rubric", "detectedGapKind", "feedback"],
  "properties": {
    "overallScore": {"type": "number"},
    "rubric": {
      "type": "object",
      "required": ["correctness", "depth", "clarity", "structure", "completeness"],
      "properties": {
        "correctness": {"type": "number"},
        "depth": {"type": "number"},
        "clarity": {"type": "number"},
        "structure": {"type": "number"},
        "completeness": {"type": "number"}
      }
    },
    "identifiedStrengths": {"type": "array", "items": {"type": "string"}},
    "identifiedWeaknesses": {"type": "array", "items": {"type": "string"}},
    "detectedGapKind": {
      "type": "string",
      "enum": ["none", "knowledge", "explanation", "depth", "application"]
    },
    "needsFollowUp": {"type": "boolean"},
    "feedback": {"type": "string"}
  }
}`

// FinalEvaluationSchema constrains the session-level final verdict.
const FinalEvaluationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "finalEvaluation",
  "type": "object",
  "required": ["overallScore", "perDimensionScores", "strengths", "weaknesses", "recommendation"],
  "properties": {
    "overallScore": {"type": "number"},
    "perDimensionScores": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    },
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "recommendation": {"type": "string"},
    "topicMasteryDeltas": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    }
  }
}`
