package turn

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/turnkit/agentcore/internal/collab"
)

// sessionApprovals remembers per-conversation approval decisions so a
// DecisionApprovedForSession or DecisionApprovedExecpolicyAmendment
// doesn't re-prompt for an identical or policy-matched action later in the
// same session, per spec.md §4.J "Approval protocol".
type sessionApprovals struct {
	mu       sync.Mutex
	approved map[string]bool
	prefixes []string
}

func newSessionApprovals() *sessionApprovals {
	return &sessionApprovals{approved: make(map[string]bool)}
}

func (s *sessionApprovals) isPreApproved(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.approved[key] {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (s *sessionApprovals) record(key string, decision collab.ApprovalDecision, prefixes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch decision {
	case collab.DecisionApprovedForSession:
		s.approved[key] = true
	case collab.DecisionApprovedExecpolicyAmendment:
		s.prefixes = append(s.prefixes, prefixes...)
	}
}

// requestApproval gates a tool call behind the turn's approval policy: a
// policy of "never" always runs without prompting; otherwise a
// previously-session-approved or policy-amended key skips the prompt, and
// everything else suspends on ui.RequestApproval until the user answers.
// It returns (decision, aborted, error).
func (o *Orchestrator) requestApproval(ctx context.Context, policy, key string, req collab.ApprovalRequest) (collab.ApprovalDecision, bool, error) {
	if policy == "never" {
		return collab.DecisionApproved, false, nil
	}
	if o.approvals.isPreApproved(key) {
		return collab.DecisionApprovedForSession, false, nil
	}
	if o.ui == nil {
		return collab.DecisionApproved, false, nil
	}

	resp, err := o.ui.RequestApproval(ctx, req)
	if err != nil {
		return "", false, err
	}

	o.approvals.record(key, resp.Decision, resp.PolicyPrefix)
	if resp.Decision == collab.DecisionAbort {
		return resp.Decision, true, nil
	}
	return resp.Decision, false, nil
}

func marshalPayload(payload any) ([]byte, error) {
	return json.Marshal(payload)
}
