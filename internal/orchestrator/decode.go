package orchestrator

import (
	"strings"

	"interviewforge/internal/merge"
	"interviewforge/internal/repair"
)

type assignmentReply struct {
	Assignments []struct {
		ID        string   `json:"id"`
		Entities  []string `json:"entities"`
		Entity    string   `json:"entity"`
		Rationale string   `json:"rationale"`
	} `json:"assignments"`
}

// decodeAssignments turns the item-centric reply into one assignment per
// (entity, item) pair. Ids and keys are validated later by the
// accumulator against the catalog and the chunk scope.
func decodeAssignments(raw string) (any, repair.Outcome, error) {
	var reply assignmentReply
	out, err := repair.Decode(raw, &reply)
	if err != nil {
		return nil, out, err
	}
	if len(reply.Assignments) == 0 {
		return nil, out, repair.Invalid(raw, out.Steps, "reply has no assignments")
	}
	var as []merge.Assignment
	for _, a := range reply.Assignments {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			continue
		}
		keys := a.Entities
		if a.Entity != "" {
			keys = append(keys, a.Entity)
		}
		for _, k := range keys {
			if k = strings.TrimSpace(k); k == "" {
				continue
			}
			as = append(as, merge.Assignment{Entity: k, ItemIDs: []string{id}, Rationale: a.Rationale})
		}
	}
	return as, out, nil
}

type textReply struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

func decodeText(raw string) (any, repair.Outcome, error) {
	var reply textReply
	out, err := repair.Decode(raw, &reply)
	if err != nil {
		return nil, out, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, out, repair.Invalid(raw, out.Steps, "reply has no text")
	}
	return reply, out, nil
}

type digestEntry struct {
	ID     string `json:"id"`
	Digest string `json:"digest"`
}

func decodeDigests(raw string) (any, repair.Outcome, error) {
	var reply struct {
		Digests []digestEntry `json:"digests"`
	}
	out, err := repair.Decode(raw, &reply)
	if err != nil {
		return nil, out, err
	}
	if len(reply.Digests) == 0 {
		return nil, out, repair.Invalid(raw, out.Steps, "reply has no digests")
	}
	return reply.Digests, out, nil
}

func decodeRefined(raw string) (any, repair.Outcome, error) {
	var reply struct {
		Text string `json:"text"`
	}
	out, err := repair.Decode(raw, &reply)
	if err != nil {
		return nil, out, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, out, repair.Invalid(raw, out.Steps, "reply has no text")
	}
	return strings.TrimSpace(reply.Text), out, nil
}
