package selector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/types"
)

type fakeCompleter struct {
	resp    *gateway.Response
	err     error
	lastReq gateway.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

func testSession() *types.Session {
	return &types.Session{
		UserID:        "u1",
		InterviewType: types.InterviewTechnical,
		TargetRole:    "Backend Engineer",
		ResumeSummary: "Go, Kubernetes, PostgreSQL",
		JDSummary:     "Go, PostgreSQL, Kafka",
		Status:        types.StatusInProgress,
		State:         types.SessionState{DifficultyLevel: 3},
		MaxTurns:      10,
	}
}

func TestAdjustDifficulty(t *testing.T) {
	assert.Equal(t, 4, AdjustDifficulty(3, 80))
	assert.Equal(t, 2, AdjustDifficulty(3, 40))
	assert.Equal(t, 3, AdjustDifficulty(3, 60))
	// Bounds hold.
	assert.Equal(t, 5, AdjustDifficulty(5, 95))
	assert.Equal(t, 1, AdjustDifficulty(1, 10))
}

func TestSelect_PolicyOverridesLLMFields(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{
		Content: `{"topic": "llm-invented-topic", "skillTags": ["Go"], "difficulty": 5, "text": "Explain Go's memory model."}`,
	}}
	sel := New(fake)
	sess := testSession()

	out, err := sel.Select(context.Background(), Input{Session: sess})
	require.NoError(t, err)

	// Topic and difficulty come from the policy, not the LLM.
	assert.Equal(t, "Go", out.Question.Topic)
	assert.Equal(t, 3, out.Question.Difficulty)
	assert.False(t, out.Question.IsFollowUp)
	assert.Equal(t, "Explain Go's memory model.", out.Question.Text)
	assert.NotEmpty(t, fake.lastReq.ResponseSchema)
}

func TestSelect_DegradedUsesBank(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `{}`, Degraded: true}}
	sel := New(fake)

	out, err := sel.Select(context.Background(), Input{Session: testSession()})
	require.NoError(t, err)

	assert.True(t, out.Degraded)
	assert.Equal(t, "Go", out.Question.Topic)
	assert.Equal(t, 3, out.Question.Difficulty)
	assert.Contains(t, out.Question.Text, "Go")
}

func TestSelect_MalformedUsesBank(t *testing.T) {
	fake := &fakeCompleter{err: &gateway.Error{Kind: gateway.FailMalformed, Message: "bad"}}
	sel := New(fake)

	out, err := sel.Select(context.Background(), Input{Session: testSession()})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
}

func TestSelect_OtherGatewayErrorsPropagate(t *testing.T) {
	fake := &fakeCompleter{err: &gateway.Error{Kind: gateway.FailQuota, Message: "quota"}}
	sel := New(fake)

	_, err := sel.Select(context.Background(), Input{Session: testSession()})
	require.Error(t, err)

	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gateway.FailQuota, gerr.Kind)
}

func TestSelect_FollowUpKeepsParentTopicAndDifficulty(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{
		Content: `{"topic": "x", "skillTags": ["contention"], "difficulty": 1, "text": "How does the scheduler handle blocked goroutines?"}`,
	}}
	sel := New(fake)

	parent := &types.Turn{
		Index:      2,
		Question:   types.Question{Text: "Explain mutexes.", Topic: "concurrency", SkillTags: []string{"Go", "sync"}, Difficulty: 4},
		Answer:     &types.Answer{Text: "locks"},
		Evaluation: &types.Evaluation{OverallScore: 42},
	}

	out, err := sel.Select(context.Background(), Input{Session: testSession(), FollowUpOf: parent})
	require.NoError(t, err)

	assert.True(t, out.Question.IsFollowUp)
	require.NotNil(t, out.Question.ParentIndex)
	assert.Equal(t, 2, *out.Question.ParentIndex)
	assert.Equal(t, "concurrency", out.Question.Topic)
	assert.Equal(t, 4, out.Question.Difficulty)
	// Parent tags survive the merge.
	assert.Contains(t, out.Question.SkillTags, "Go")
	assert.Contains(t, out.Question.SkillTags, "contention")
}

func TestChooseTopic_PreferenceOrder(t *testing.T) {
	sess := testSession()

	// 1. JD/resume intersection first.
	topic := ChooseTopic(&sess.State, sess, []string{"Redis"})
	assert.Equal(t, "Go", topic)

	// 2. Ledger weak areas once the intersection is covered.
	state := types.SessionState{TopicsCovered: []string{"Go", "PostgreSQL"}}
	topic = ChooseTopic(&state, sess, []string{"Redis"})
	assert.Equal(t, "Redis", topic)

	// 3. Remaining JD skills next.
	topic = ChooseTopic(&state, sess, nil)
	assert.Equal(t, "Kafka", topic)

	// 4. Resume rotation when everything else is covered.
	state.TopicsCovered = append(state.TopicsCovered, "Kafka", "Kubernetes")
	state.CurrentTurn = 1
	topic = ChooseTopic(&state, sess, nil)
	assert.Equal(t, "Kubernetes", topic)

	// 5. Generic fallback with no summaries at all.
	bare := testSession()
	bare.ResumeSummary = ""
	bare.JDSummary = ""
	topic = ChooseTopic(&types.SessionState{}, bare, nil)
	assert.Equal(t, "data structures and algorithms", topic)
}

func TestExtractSkills(t *testing.T) {
	skills := ExtractSkills("Go, Kubernetes; PostgreSQL\n• Kafka, go, " + strings.Repeat("a very long prose sentence that is definitely not a skill name ", 2))

	assert.Equal(t, []string{"Go", "Kubernetes", "PostgreSQL", "Kafka"}, skills)
	assert.Nil(t, ExtractSkills(""))
}

func TestBankQuestion_AllTypesAndDifficulties(t *testing.T) {
	for _, it := range []types.InterviewType{
		types.InterviewTechnical, types.InterviewBehavioral,
		types.InterviewSystemDesign, types.InterviewMixed,
	} {
		for d := 1; d <= 5; d++ {
			q := BankQuestion("caching", d, it)
			assert.Equal(t, d, q.Difficulty)
			assert.Equal(t, "caching", q.Topic)
			assert.Contains(t, q.Text, "caching", "type %s difficulty %d", it, d)
			assert.NotContains(t, q.Text, "%s", "type %s difficulty %d", it, d)
			require.NoError(t, q.Validate())
		}
	}
}

func TestBankQuestion_ClampsDifficulty(t *testing.T) {
	assert.Equal(t, 1, BankQuestion("x", 0, types.InterviewTechnical).Difficulty)
	assert.Equal(t, 5, BankQuestion("x", 9, types.InterviewTechnical).Difficulty)
}

func TestBankQuestion_EmptyTopicFallsBackToGeneric(t *testing.T) {
	q := BankQuestion("", 2, types.InterviewBehavioral)
	assert.Equal(t, "teamwork and conflict resolution", q.Topic)
}
