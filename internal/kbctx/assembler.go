// Package kbctx assembles the knowledge-base context injected into every
// suggestion and summary LLM call.
//
// The context consists of the pitch deck under discussion, its AI analysis,
// the firm's investment thesis, prior Q&A turns about the deck, supporting
// documents, and relevant data-room documents. All components after the
// deck itself are fetched concurrently. Use [Format] to convert a
// [KnowledgeBase] into a prompt string ready for LLM injection.
package kbctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/internal/store"
	"github.com/parley-ai/parley/pkg/provider/embeddings"
	"github.com/parley-ai/parley/pkg/types"
)

// KnowledgeBase is the assembled deck context. All fields after Deck are
// optional — callers should check for nil/empty before using.
type KnowledgeBase struct {
	// Deck is the pitch deck under discussion, including its analysis.
	Deck *types.Deck

	// Thesis is the firm's investment thesis, nil when the tenant has not
	// recorded one.
	Thesis *types.Thesis

	// Messages holds prior Q&A turns about the deck, oldest first.
	Messages []types.Message

	// SupportingDocuments lists documents attached to the deck.
	SupportingDocuments []types.SupportingDocument

	// DataRoomDocuments lists data-room entries: sector-relevant ones when
	// an embeddings provider is configured, most recent otherwise.
	DataRoomDocuments []types.DataRoomDocument

	// AssemblyDuration records how long [Assembler.Assemble] took.
	AssemblyDuration time.Duration
}

// Assembler fetches all knowledge-base components and combines them into a
// [KnowledgeBase].
type Assembler struct {
	decks     store.DeckStore
	theses    store.ThesisStore
	messages  store.MessageStore
	documents store.DocumentStore
	embedder  embeddings.Provider

	maxMessages   int
	dataRoomLimit int
}

// Option is a functional option for [NewAssembler].
type Option func(*Assembler)

// WithMaxMessages caps the number of prior Q&A turns included. Defaults
// to 20.
func WithMaxMessages(n int) Option {
	return func(a *Assembler) { a.maxMessages = n }
}

// WithDataRoomLimit caps the number of data-room documents included.
// Defaults to 5.
func WithDataRoomLimit(n int) Option {
	return func(a *Assembler) { a.dataRoomLimit = n }
}

// WithEmbeddings enables sector-relevant data-room retrieval through the
// semantic index. Without it the most recent documents are used.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(a *Assembler) { a.embedder = p }
}

// NewAssembler creates an [Assembler] with sensible defaults.
func NewAssembler(decks store.DeckStore, theses store.ThesisStore, messages store.MessageStore, documents store.DocumentStore, opts ...Option) *Assembler {
	a := &Assembler{
		decks:         decks,
		theses:        theses,
		messages:      messages,
		documents:     documents,
		maxMessages:   20,
		dataRoomLimit: 5,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble fetches the deck, then loads thesis, prior messages, supporting
// documents, and data-room documents concurrently via errgroup. A missing
// deck is an error; a missing thesis is not. Assemble respects context
// cancellation on all underlying I/O calls.
func (a *Assembler) Assemble(ctx context.Context, deckID string) (*KnowledgeBase, error) {
	start := time.Now()

	deck, err := a.decks.GetDeck(ctx, deckID)
	if err != nil {
		return nil, fmt.Errorf("kb context: get deck %q: %w", deckID, err)
	}

	kb := &KnowledgeBase{Deck: deck}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		thesis, err := a.theses.ThesisByTenant(egCtx, deck.TenantID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("kb context: get thesis for tenant %q: %w", deck.TenantID, err)
		}
		kb.Thesis = thesis
		return nil
	})

	eg.Go(func() error {
		msgs, err := a.messages.MessagesByDeck(egCtx, deckID, a.maxMessages)
		if err != nil {
			return fmt.Errorf("kb context: get messages for deck %q: %w", deckID, err)
		}
		kb.Messages = msgs
		return nil
	})

	eg.Go(func() error {
		docs, err := a.documents.SupportingDocumentsByDeck(egCtx, deckID)
		if err != nil {
			return fmt.Errorf("kb context: get supporting documents for deck %q: %w", deckID, err)
		}
		kb.SupportingDocuments = docs
		return nil
	})

	eg.Go(func() error {
		docs, err := a.dataRoomDocs(egCtx, deck)
		if err != nil {
			return fmt.Errorf("kb context: get data-room documents for deck %q: %w", deckID, err)
		}
		kb.DataRoomDocuments = docs
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	kb.AssemblyDuration = time.Since(start)
	return kb, nil
}

// dataRoomDocs retrieves the deck's data-room context. With an embeddings
// provider and a known sector the semantic index is queried; embedding
// failures degrade to the recency path rather than failing assembly.
func (a *Assembler) dataRoomDocs(ctx context.Context, deck *types.Deck) ([]types.DataRoomDocument, error) {
	if a.embedder != nil && deck.Sector != "" {
		query := deck.Sector + " " + deck.Title
		vec, err := a.embedder.Embed(ctx, query)
		if err != nil {
			slog.Warn("data-room embedding failed, falling back to recency",
				"deck_id", deck.ID,
				"error", err)
		} else {
			return a.documents.SearchDataRoomDocuments(ctx, deck.TenantID, vec, a.dataRoomLimit)
		}
	}
	return a.documents.RecentDataRoomDocuments(ctx, deck.TenantID, a.dataRoomLimit)
}
