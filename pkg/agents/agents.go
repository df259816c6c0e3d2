// Package agents implements the assistant's pipeline stages and wires them
// into a graph:
//
//	START -> memory -> router -> retriever -> reranker -> persona -> critic -> notes -> END
//	                      |                                             |
//	                      +--> scheduling -> END                        +--> END
//	                      +--> email -> END
//	                      +--> persona (direct answers)
//
// Stages call their collaborators through the narrow interfaces in llm,
// vectorstore and tools. Lookups that only enrich an answer (memories,
// reranking, notes, scheduling) degrade to a default when a collaborator
// fails; the calls an answer cannot do without fail the stage.
package agents

import (
	"errors"
	"time"

	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/tools"
	"github.com/randalmurphal/portfolio-agent/pkg/vectorstore"
)

// Stage identifiers.
const (
	StageMemory     = "memory"
	StageRouter     = "router"
	StageRetriever  = "retriever"
	StageReranker   = "reranker"
	StagePersona    = "persona"
	StageCritic     = "critic"
	StageNotes      = "notes"
	StageScheduling = "scheduling"
	StageEmail      = "email"
)

// Intent labels written to last_intent by the router.
const (
	IntentSchedule = "schedule"
	IntentEmail    = "email"
	IntentRetrieve = "retrieve"
	IntentDirect   = "direct"
)

// Canned answers.
const (
	ApologyAnswer    = "I apologize, but I'm experiencing technical difficulties. Please try again or rephrase your question."
	UnverifiedAnswer = "I can't fully verify that information right now. Would you like me to show the sources or request a human review?"
	DegradedAnswer   = "Sorry, something went wrong while answering. Please try again in a moment."
)

// Retrieval limits.
const (
	memoryTopK       = 3
	maxMemories      = 5
	contextMessages  = 6
	contextRunes     = 200
	retrieveTopK     = 6
	rerankRunes      = 300
	citedDocuments   = 3
	citationRunes    = 400
	promptMemories   = 2
	promptMemoryLen  = 200
	promptHistoryLen = 4
)

// Token budgets per call.
const (
	routerTokens  = 32
	queryTokens   = 64
	rerankTokens  = 256
	answerTokens  = 512
	verdictTokens = 128
	emailTokens   = 400
)

// ErrMissingDependency is returned by BuildGraph when a required
// collaborator is nil.
var ErrMissingDependency = errors.New("agents: missing dependency")

// Deps are the collaborators the stages call.
type Deps struct {
	// LLM answers every prompt. Required.
	LLM llm.Client

	// Embedder and Vectors back retrieval, memories and notes. Required.
	Embedder llm.Embedder
	Vectors  vectorstore.Store

	// Scheduler produces booking links. Nil uses FallbackLink.
	Scheduler    tools.Scheduler
	FallbackLink string

	// Mailer sends drafted emails. Nil never sends.
	Mailer tools.Mailer

	// PersonaPrompt is the system prompt for final answers.
	PersonaPrompt string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) validate() error {
	var errs []error
	if d.LLM == nil {
		errs = append(errs, errors.New("LLM client is nil"))
	}
	if d.Embedder == nil {
		errs = append(errs, errors.New("embedder is nil"))
	}
	if d.Vectors == nil {
		errs = append(errs, errors.New("vector store is nil"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrMissingDependency}, errs...)...)
	}
	return nil
}

// stages binds the stage functions to their collaborators.
type stages struct {
	Deps
}

func newStages(d Deps) *stages {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &stages{Deps: d}
}
