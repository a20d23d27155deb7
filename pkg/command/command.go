// Package command extracts tag commands from free-form agent replies.
//
// Five tags are recognized, case-sensitive and never nested:
//
//	<cfol>folder</cfol>
//	<cfil>folder/file.py</cfil>
//	<efil file="folder/file.py">entire file body</efil>
//	<exec>folder/file.py</exec>
//	<rinf>question for the user</rinf>
//
// Only the <efil> body may span lines. Anything that does not form a complete
// tag is ignored.
package command

import (
	"strings"

	"github.com/nstogner/crew/pkg/domain"
)

// family describes how one tag kind is scanned.
type family struct {
	kind  domain.ActionKind
	open  string
	close string
	// multiline allows the payload to contain line breaks.
	multiline bool
	// trim strips surrounding whitespace from the payload.
	trim bool
}

// families lists the tag kinds in dispatch order.
var families = []family{
	{kind: domain.ActionCreateFolder, open: "<cfol>", close: "</cfol>", trim: true},
	{kind: domain.ActionCreateFile, open: "<cfil>", close: "</cfil>", trim: true},
	{kind: domain.ActionEditFile, open: `<efil file="`, close: "</efil>", multiline: true},
	{kind: domain.ActionExecute, open: "<exec>", close: "</exec>", trim: true},
	{kind: domain.ActionRequestInfo, open: "<rinf>", close: "</rinf>", trim: true},
}

// Parse returns the actions found in text. Actions are grouped by family in
// the order folders, files, edits, executions, info requests; inside a
// family they keep the order in which they appear in the text.
func Parse(text string) []domain.Action {
	var actions []domain.Action
	for _, f := range families {
		actions = append(actions, f.scan(text)...)
	}
	return actions
}

// RequestPrompt returns the payload of the first well-formed <rinf> tag.
func RequestPrompt(text string) (string, bool) {
	for _, f := range families {
		if f.kind != domain.ActionRequestInfo {
			continue
		}
		if a, ok := f.first(text); ok {
			return a.Prompt, true
		}
	}
	return "", false
}

// NeedsMoreInfo reports whether text asks the user for more information.
func NeedsMoreInfo(text string) bool {
	_, ok := RequestPrompt(text)
	return ok
}

func (f family) scan(text string) []domain.Action {
	var out []domain.Action
	pos := 0
	for {
		a, next, ok := f.next(text, pos)
		if !ok {
			return out
		}
		out = append(out, a)
		pos = next
	}
}

func (f family) first(text string) (domain.Action, bool) {
	a, _, ok := f.next(text, 0)
	return a, ok
}

// next finds the first complete tag at or after pos. It returns the action
// and the offset just past the closing tag.
func (f family) next(text string, pos int) (domain.Action, int, bool) {
	for pos < len(text) {
		i := strings.Index(text[pos:], f.open)
		if i < 0 {
			return domain.Action{}, 0, false
		}
		start := pos + i + len(f.open)
		j := strings.Index(text[start:], f.close)
		if j < 0 {
			// No closing tag after this opening one, so none after any
			// later opening tag either.
			return domain.Action{}, 0, false
		}
		end := start + j
		a, ok := f.build(text[start:end])
		if ok {
			return a, end + len(f.close), true
		}
		pos = start
	}
	return domain.Action{}, 0, false
}

// build turns the raw text between the opening and closing markers into an
// action, or reports that the candidate is malformed.
func (f family) build(raw string) (domain.Action, bool) {
	if f.kind == domain.ActionEditFile {
		return buildEdit(raw)
	}
	if !f.multiline && strings.ContainsRune(raw, '\n') {
		return domain.Action{}, false
	}
	payload := raw
	if f.trim {
		payload = strings.TrimSpace(payload)
	}
	a := domain.Action{Kind: f.kind}
	if f.kind == domain.ActionRequestInfo {
		a.Prompt = payload
	} else {
		a.Path = payload
	}
	return a, true
}

// buildEdit splits `PATH">BODY` into an edit action. The body is kept
// byte for byte.
func buildEdit(raw string) (domain.Action, bool) {
	const attrEnd = `">`
	i := strings.Index(raw, attrEnd)
	if i < 0 {
		return domain.Action{}, false
	}
	return domain.Action{
		Kind:    domain.ActionEditFile,
		Path:    strings.TrimSpace(raw[:i]),
		Content: raw[i+len(attrEnd):],
	}, true
}
