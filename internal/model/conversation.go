package model

import (
	"time"
)

// Node is a state of the workflow state machine.
type Node string

const (
	NodeInit         Node = "INIT"
	NodeCacheCheck   Node = "CACHE_CHECK"
	NodeReformulate  Node = "REFORMULATE"
	NodeRetrieve     Node = "RETRIEVE"
	NodeGenerate     Node = "GENERATE"
	NodeAssess       Node = "ASSESS"
	NodeCacheUpdate  Node = "CACHE_UPDATE"
	NodeEscalate     Node = "ESCALATE"
	NodeEscalateWait Node = "ESCALATE_WAIT"
	NodeDone         Node = "DONE"
	NodeFailed       Node = "FAILED"
)

// RunStatus is the lifecycle status of a workflow run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPaused  RunStatus = "paused"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether no further node will execute for the run.
func (s RunStatus) Terminal() bool {
	return s == RunDone || s == RunFailed
}

// ContextChunk is one piece of retrieved knowledge.
type ContextChunk struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score"`
}

// AgentState is the full working state of one workflow run on a thread.
type AgentState struct {
	ThreadID          string         `json:"thread_id"`
	TenantID          string         `json:"tenant_id"`
	Messages          MessageLog     `json:"message_history"`
	Utterance         string         `json:"utterance"`
	RephrasedQuestion string         `json:"rephrased_question,omitempty"`
	RetrievedContext  []ContextChunk `json:"retrieved_context,omitempty"`
	DraftAnswer       string         `json:"draft_answer,omitempty"`
	ConfidenceScore   *float64       `json:"confidence_score,omitempty"`
	CacheHit          bool           `json:"cache_hit_flag"`
	CurrentNode       Node           `json:"current_node"`
	Status            RunStatus      `json:"status"`

	// Recorded is how many entries of Messages have been appended to the
	// History Store.
	Recorded int `json:"recorded"`

	// ResolvedByHuman marks a run finished by the Resolution Handler.
	ResolvedByHuman bool `json:"resolved_by_human,omitempty"`
}

// Checkpoint is a versioned snapshot of an AgentState.
type Checkpoint struct {
	State     AgentState `json:"state"`
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}
