package agent

import (
	"fmt"

	"github.com/capitalize-ai/support-agent/internal/model"
)

// ConfidenceThreshold separates delivered answers from escalated ones.
// A score equal to the threshold is delivered.
const ConfidenceThreshold = 0.7

// Outcome of executing one node.
type outcome string

const (
	outcomeOK       outcome = "ok"
	outcomeHit      outcome = "hit"
	outcomeMiss     outcome = "miss"
	outcomeHigh     outcome = "high_confidence"
	outcomeLow      outcome = "low_confidence"
	outcomeFallback outcome = "fallback"
	outcomeError    outcome = "error"
)

// transitions is the complete edge set of the workflow.
var transitions = map[model.Node]map[outcome]model.Node{
	model.NodeInit: {
		outcomeOK:    model.NodeCacheCheck,
		outcomeError: model.NodeFailed,
	},
	model.NodeCacheCheck: {
		outcomeHit:      model.NodeDone,
		outcomeMiss:     model.NodeReformulate,
		outcomeFallback: model.NodeReformulate,
	},
	model.NodeReformulate: {
		outcomeOK:       model.NodeRetrieve,
		outcomeFallback: model.NodeRetrieve,
	},
	model.NodeRetrieve: {
		outcomeOK:       model.NodeGenerate,
		outcomeFallback: model.NodeGenerate,
	},
	model.NodeGenerate: {
		outcomeOK:    model.NodeAssess,
		outcomeError: model.NodeFailed,
	},
	model.NodeAssess: {
		outcomeHigh:     model.NodeCacheUpdate,
		outcomeLow:      model.NodeEscalate,
		outcomeFallback: model.NodeDone,
	},
	model.NodeCacheUpdate: {
		outcomeOK:       model.NodeDone,
		outcomeFallback: model.NodeDone,
	},
	model.NodeEscalate: {
		outcomeOK:    model.NodeEscalateWait,
		outcomeError: model.NodeFailed,
	},
}

// next returns the node that follows node on o.
func next(node model.Node, o outcome) (model.Node, error) {
	edges, ok := transitions[node]
	if !ok {
		return "", fmt.Errorf("node %s has no outgoing transitions", node)
	}
	to, ok := edges[o]
	if !ok {
		return "", fmt.Errorf("node %s has no transition on %s", node, o)
	}
	return to, nil
}

// route maps a confidence score to ASSESS's outcome.
func route(score float64) outcome {
	if score >= ConfidenceThreshold {
		return outcomeHigh
	}
	return outcomeLow
}

// isStop reports whether the run ends when it reaches node.
func isStop(node model.Node) bool {
	switch node {
	case model.NodeDone, model.NodeFailed, model.NodeEscalateWait:
		return true
	}
	return false
}
