// Package mcpbridge exposes finished and in-flight meeting sessions to MCP
// clients over the Streamable HTTP transport. It is read-only: agents can
// inspect sessions, transcripts, and the suggested-question list, but all
// mutations stay on the REST control API.
//
// The bridge is disabled by default and mounted at /mcp when enabled.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/parley-ai/parley/internal/store"
	"github.com/parley-ai/parley/pkg/types"
)

// Bridge owns the MCP server and its store handles.
type Bridge struct {
	sessions    store.SessionStore
	transcripts store.TranscriptStore
	server      *mcpsdk.Server
}

// New creates a [Bridge] with the session inspection tools registered.
func New(sessions store.SessionStore, transcripts store.TranscriptStore) *Bridge {
	b := &Bridge{
		sessions:    sessions,
		transcripts: transcripts,
	}

	b.server = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "parley",
		Version: "1.0.0",
	}, nil)

	mcpsdk.AddTool(b.server, &mcpsdk.Tool{
		Name:        "get_session",
		Description: "Fetch a meeting session by id, including its status, summary state, and suggested questions.",
	}, b.getSession)
	mcpsdk.AddTool(b.server, &mcpsdk.Tool{
		Name:        "get_transcript",
		Description: "Fetch the transcript of a meeting session in chronological order. Set finalOnly to skip streaming partials.",
	}, b.getTranscript)
	mcpsdk.AddTool(b.server, &mcpsdk.Tool{
		Name:        "list_suggested_questions",
		Description: "List the visible suggested questions of a meeting session.",
	}, b.listQuestions)

	return b
}

// Handler returns the Streamable HTTP handler to mount at /mcp.
func (b *Bridge) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return b.server
	}, nil)
}

type sessionArgs struct {
	SessionID string `json:"sessionId" jsonschema:"the meeting session id"`
}

type transcriptArgs struct {
	SessionID string `json:"sessionId" jsonschema:"the meeting session id"`
	FinalOnly bool   `json:"finalOnly,omitempty" jsonschema:"return only final full-audio segments"`
}

func (b *Bridge) getSession(ctx context.Context, _ *mcpsdk.CallToolRequest, args sessionArgs) (*mcpsdk.CallToolResult, any, error) {
	sess, err := b.sessions.GetSession(ctx, args.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("get_session %q: %w", args.SessionID, err)
	}
	return jsonResult(sess)
}

type transcriptPayload struct {
	SessionID   string             `json:"sessionId"`
	Transcripts []types.Transcript `json:"transcripts"`
}

func (b *Bridge) getTranscript(ctx context.Context, _ *mcpsdk.CallToolRequest, args transcriptArgs) (*mcpsdk.CallToolResult, any, error) {
	if _, err := b.sessions.GetSession(ctx, args.SessionID); err != nil {
		return nil, nil, fmt.Errorf("get_transcript %q: %w", args.SessionID, err)
	}
	trs, err := b.transcripts.TranscriptsBySession(ctx, args.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("get_transcript %q: %w", args.SessionID, err)
	}
	if args.FinalOnly {
		finals := trs[:0]
		for _, tr := range trs {
			if tr.IsFinal {
				finals = append(finals, tr)
			}
		}
		trs = finals
	}
	if trs == nil {
		trs = []types.Transcript{}
	}
	return jsonResult(transcriptPayload{SessionID: args.SessionID, Transcripts: trs})
}

type questionsPayload struct {
	SessionID string                    `json:"sessionId"`
	Questions []types.SuggestedQuestion `json:"questions"`
}

func (b *Bridge) listQuestions(ctx context.Context, _ *mcpsdk.CallToolRequest, args sessionArgs) (*mcpsdk.CallToolResult, any, error) {
	sess, err := b.sessions.GetSession(ctx, args.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("list_suggested_questions %q: %w", args.SessionID, err)
	}
	return jsonResult(questionsPayload{SessionID: sess.ID, Questions: sess.VisibleQuestions()})
}

// jsonResult renders v as a single JSON text content block.
func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("mcp bridge: marshal result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}
