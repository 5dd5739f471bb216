// Package dispatch routes a free-text request either to the architecture
// change pipeline or to the audit log.
//
// Routing is a keyword classifier: requests that start with a change verb
// ("add", "migrate", ...) run the pipeline, questions and history lookups
// query the audit log, and anything else is treated as a new requirement.
// Callers may force the route with an explicit Intent.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/logging"
	"github.com/HendryAvila/archpipe/internal/pipeline"
)

// Intent is the route of a request.
type Intent string

const (
	IntentAuto   Intent = ""
	IntentChange Intent = "change"
	IntentAudit  Intent = "audit"
)

// ParseIntent accepts "", "auto", "change" or "audit".
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return IntentAuto, nil
	case string(IntentChange):
		return IntentChange, nil
	case string(IntentAudit):
		return IntentAudit, nil
	default:
		return IntentAuto, fmt.Errorf("invalid intent %q: must be one of: auto, change, audit", s)
	}
}

// Runner runs the change pipeline.
type Runner interface {
	Run(ctx context.Context, projectID, requirement string) (*pipeline.RunResult, error)
}

// Auditor answers audit queries.
type Auditor interface {
	Query(ctx context.Context, filterText string) ([]arch.AuditEntry, error)
}

// Request is one user request.
type Request struct {
	ProjectID string
	Text      string
	Intent    Intent
}

// Response carries the result of whichever route ran.
type Response struct {
	Intent  Intent              `json:"intent"`
	Filter  string              `json:"filter,omitempty"`
	Run     *pipeline.RunResult `json:"run,omitempty"`
	Entries []arch.AuditEntry   `json:"entries,omitempty"`
}

// Dispatcher routes requests.
type Dispatcher struct {
	runner  Runner
	auditor Auditor
	log     *logging.Logger
}

// New returns a Dispatcher over runner and auditor.
func New(runner Runner, auditor Auditor, log *logging.Logger) *Dispatcher {
	return &Dispatcher{runner: runner, auditor: auditor, log: logging.OrNop(log)}
}

// Dispatch classifies req (unless its Intent is set) and runs the route.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("request text is required")
	}

	intent := req.Intent
	if intent == IntentAuto {
		intent = Classify(text)
	}
	d.log.Debug("request dispatched", "intent", intent, "project", req.ProjectID, "forced", req.Intent != IntentAuto)

	switch intent {
	case IntentChange:
		if strings.TrimSpace(req.ProjectID) == "" {
			return nil, fmt.Errorf("project id is required for a change request")
		}
		res, err := d.runner.Run(ctx, req.ProjectID, text)
		if err != nil {
			return nil, err
		}
		return &Response{Intent: IntentChange, Run: res}, nil

	case IntentAudit:
		filter := AuditFilter(text)
		entries, err := d.auditor.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &Response{Intent: IntentAudit, Filter: filter, Entries: entries}, nil

	default:
		return nil, fmt.Errorf("invalid intent %q", intent)
	}
}

var changeVerbs = map[string]bool{
	"add": true, "introduce": true, "create": true, "remove": true,
	"delete": true, "retire": true, "deprecate": true, "replace": true,
	"migrate": true, "move": true, "split": true, "merge": true,
	"extract": true, "scale": true, "integrate": true, "implement": true,
	"support": true, "enable": true, "rename": true, "harden": true,
	"upgrade": true, "build": true, "need": true,
}

var auditCues = map[string]bool{
	"why": true, "when": true, "who": true, "what": true, "which": true,
	"how": true, "history": true, "audit": true, "show": true, "list": true,
	"find": true, "search": true, "log": true,
}

// Classify picks the route of text.
func Classify(text string) Intent {
	words := tokenize(text)
	if len(words) == 0 {
		return IntentChange
	}
	first := words[0]
	if first == "please" && len(words) > 1 {
		first = words[1]
	}
	if changeVerbs[first] {
		return IntentChange
	}
	if auditCues[first] || strings.HasSuffix(strings.TrimSpace(text), "?") {
		return IntentAudit
	}
	for _, w := range words {
		if w == "audit" || w == "history" {
			return IntentAudit
		}
	}
	return IntentChange
}

var filterStopwords = map[string]bool{
	"did": true, "do": true, "does": true, "we": true, "i": true, "you": true,
	"the": true, "a": true, "an": true, "was": true, "were": true, "is": true,
	"are": true, "me": true, "about": true, "for": true, "of": true,
	"to": true, "in": true, "on": true, "our": true, "any": true, "all": true,
	"changes": true, "change": true, "changed": true, "entries": true,
	"please": true, "it": true, "that": true, "this": true, "with": true,
}

// AuditFilter strips question words and filler from text, leaving the
// keywords to search for. "Why did we add payments?" → "add payments".
func AuditFilter(text string) string {
	var keep []string
	for _, w := range tokenize(text) {
		if auditCues[w] || filterStopwords[w] {
			continue
		}
		keep = append(keep, w)
	}
	return strings.Join(keep, " ")
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
}
