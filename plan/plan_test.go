package plan

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/agent"
	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/model"
	"github.com/chauffeur-ai/chauffeur/tools"
	"github.com/chauffeur-ai/chauffeur/workspace"
)

// stubClient answers every call with the same canned response.
type stubClient struct {
	text        string
	usage       model.TokenUsage
	completeErr error
}

func (c *stubClient) Complete(context.Context, model.Request) (model.Response, error) {
	if c.completeErr != nil {
		return model.Response{}, c.completeErr
	}
	return model.Response{Content: c.text}, nil
}

func (c *stubClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	chunks := []model.Chunk{{Text: c.text}}
	if c.usage != (model.TokenUsage{}) {
		usage := c.usage
		chunks = append(chunks, model.Chunk{Usage: &usage})
	}
	return &stubStreamer{chunks: chunks}, nil
}

type stubStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *stubStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *stubStreamer) Close() error { return nil }

func TestParsePlan(t *testing.T) {
	valid := `[
		{"task": "find frameworks", "tool": "browser", "output": "frameworks.md"},
		{"task": "compare them", "tool": "compile", "output": "report.md"}
	]`
	cases := []struct {
		name string
		text string
		ok   bool
		n    int
	}{
		{"simple object", `{"simple": true}`, false, 0},
		{"bare array", valid, true, 2},
		{"fenced array", "```json\n" + valid + "\n```", true, 2},
		{"fence no lang", "```\n" + valid + "\n```", true, 2},
		{"prose", "I cannot plan this.", false, 0},
		{"broken json", `[{"task": "x"`, false, 0},
		{"one subtask", `[{"task": "t", "tool": "compile", "output": "o"}]`, false, 0},
		{"last not compile", `[
			{"task": "a", "tool": "browser", "output": "a.md"},
			{"task": "b", "tool": "files", "output": "b.md"}
		]`, false, 0},
		{"missing output", `[
			{"task": "a", "tool": "browser", "output": ""},
			{"task": "b", "tool": "compile", "output": "b.md"}
		]`, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subtasks, ok := ParsePlan(tc.text)
			require.Equal(t, tc.ok, ok)
			require.Len(t, subtasks, tc.n)
		})
	}
}

func TestParsePlanTooManySubtasks(t *testing.T) {
	text := "["
	for i := 0; i < 11; i++ {
		if i > 0 {
			text += ","
		}
		tool := "browser"
		if i == 10 {
			tool = "compile"
		}
		text += `{"task": "t", "tool": "` + tool + `", "output": "o.md"}`
	}
	text += "]"
	_, ok := ParsePlan(text)
	require.False(t, ok)
}

func TestDecomposeFallsBackOnError(t *testing.T) {
	_, ok := Decompose(t.Context(), &stubClient{completeErr: errors.New("down")}, "gpt-4o", "task")
	require.False(t, ok)
	_, ok = Decompose(t.Context(), &stubClient{text: "not json"}, "gpt-4o", "task")
	require.False(t, ok)
}

func TestDecomposeParsesPlan(t *testing.T) {
	c := &stubClient{text: "```json\n[" +
		`{"task": "a", "tool": "browser", "output": "a.md"},` +
		`{"task": "b", "tool": "compile", "output": "b.md"}` +
		"]\n```"}
	subtasks, ok := Decompose(t.Context(), c, "gpt-4o", "task")
	require.True(t, ok)
	require.Len(t, subtasks, 2)
	require.Equal(t, CompileTool, subtasks[1].Tool)
}

func newTestRunner(t *testing.T, client model.Client) (*Runner, *[]string, *int, string, *eventSink) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	prompts := &[]string{}
	factory := func(system string) (*agent.Agent, error) {
		*prompts = append(*prompts, system)
		registry, err := tools.NewRegistry()
		if err != nil {
			return nil, err
		}
		return agent.New(agent.Options{
			Client: client, Tools: registry, Ws: ws,
			Model: "gpt-4o", SystemPrompt: system,
		})
	}
	cleanups := 0
	cleanup := func(context.Context) { cleanups++ }
	bus := hooks.NewBus()
	sink := &eventSink{}
	_, err = bus.Register(sink)
	require.NoError(t, err)
	return NewRunner(factory, ws, bus, nil, nil, cleanup), prompts, &cleanups, ws.Root(), sink
}

type eventSink struct {
	mu     sync.Mutex
	events []hooks.Event
}

func (s *eventSink) HandleEvent(_ context.Context, event hooks.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *eventSink) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.Subtask != nil {
			out = append(out, e.Subtask.Phase)
		}
	}
	return out
}

var testPlan = []Subtask{
	{Task: "gather facts", Tool: "browser", Output: "facts.md"},
	{Task: "tabulate", Tool: "spreadsheet", Output: "table.csv"},
	{Task: "synthesize", Tool: CompileTool, Output: "final.md"},
}

func TestRunnerRun(t *testing.T) {
	client := &stubClient{text: "subtask finding", usage: model.TokenUsage{PromptTokens: 10, CompletionTokens: 2}}
	r, prompts, cleanups, root, sink := newTestRunner(t, client)

	result, err := r.Run(t.Context(), "research the thing", testPlan)
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 3)
	for _, st := range result.Subtasks {
		require.Equal(t, StatusDone, st.Status)
		data, err := os.ReadFile(st.OutputPath)
		require.NoError(t, err)
		// outputs the sub-agent never wrote are synthesized from its text
		require.Equal(t, "subtask finding", string(data))
	}
	require.Equal(t, "subtask finding", result.Output)
	require.Equal(t, 30, result.Usage.PromptTokens)
	require.Equal(t, 6, result.Usage.CompletionTokens)
	require.Equal(t, 3, *cleanups)
	require.Contains(t, result.RunDir, filepath.Join(root, runDirName))

	require.Len(t, *prompts, 3)
	require.Contains(t, (*prompts)[0], "subtask 1 of 3")
	require.Contains(t, (*prompts)[0], "browser")
	require.Contains(t, (*prompts)[2], "compile step of a 3-step plan")

	phases := sink.phases()
	require.Equal(t, "plan", phases[0])
	require.Contains(t, phases, hooks.SubtaskPhaseStart)
	require.Contains(t, phases, hooks.SubtaskPhaseDone)
}

func TestRunnerAbort(t *testing.T) {
	client := &stubClient{text: "partial"}
	r, _, _, _, _ := newTestRunner(t, client)
	r.Abort()

	result, err := r.Run(t.Context(), "task", testPlan)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Subtasks[0].Status)
	require.Equal(t, StatusSkipped, result.Subtasks[1].Status)
	require.Equal(t, StatusSkipped, result.Subtasks[2].Status)
	require.Empty(t, result.Output)
}

func TestResearchPlanDefaults(t *testing.T) {
	subtasks := ResearchPlan(t.Context(), nil, "gpt-4o", "quantum computing", 0, 0)
	require.Len(t, subtasks, DefaultSubtopics+1)
	for _, st := range subtasks[:DefaultSubtopics] {
		require.Equal(t, "browser", st.Tool)
		require.Contains(t, st.Prompt, "EXACTLY 3 distinct URLs")
	}
	require.Equal(t, CompileTool, subtasks[DefaultSubtopics].Tool)
}

func TestResearchPlanSubtopicsFromModel(t *testing.T) {
	c := &stubClient{text: `["history", "hardware", "algorithms"]`}
	subtasks := ResearchPlan(t.Context(), c, "gpt-4o", "quantum computing", 3, 2)
	require.Len(t, subtasks, 4)
	require.Contains(t, subtasks[0].Task, "history")
	require.Contains(t, subtasks[0].Prompt, "EXACTLY 2 distinct URLs")
}

func TestRunResearchEvents(t *testing.T) {
	client := &stubClient{text: "findings"}
	r, _, _, _, sink := newTestRunner(t, client)
	subtasks := ResearchPlan(t.Context(), nil, "gpt-4o", "topic", 2, 3)

	result, err := r.RunResearch(t.Context(), "topic", subtasks)
	require.NoError(t, err)
	require.NotEmpty(t, result.Output)

	var kinds []hooks.EventType
	sink.mu.Lock()
	for _, e := range sink.events {
		kinds = append(kinds, e.Type)
	}
	sink.mu.Unlock()
	require.Contains(t, kinds, hooks.EventResearchProgress)
	require.Contains(t, kinds, hooks.EventResearchComplete)
}
