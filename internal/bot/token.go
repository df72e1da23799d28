package bot

import (
	"fmt"
	"strings"

	"github.com/archivist/archivist/internal/chat"
)

// Op is one decoded control operation. Every inline button carries an
// encoded Action; decode happens in exactly one place so routing stays
// exhaustive and testable.
type Op int

const (
	OpNoop Op = iota
	OpMain
	OpMyRole
	OpContact
	OpBrowse
	OpDownload
	OpAdmin
	OpCreateNav
	OpCreateHere
	OpUploadNav
	OpUploadTo
	OpCancelUpload
	OpDeleteNav
	OpDeleteConfirm
	OpDeleteExecute
)

// Action is a decoded control token. Arg holds the relative id for
// path-scoped operations and the submenu name for OpAdmin; the special
// values "root" and ".." are passed through for the navigation ops.
type Action struct {
	Op  Op
	Arg string
}

var opPrefixes = map[Op]string{
	OpBrowse:        "browse:",
	OpDownload:      "download:",
	OpAdmin:         "admin:",
	OpCreateNav:     "createNav:",
	OpCreateHere:    "createHere:",
	OpUploadNav:     "uploadNav:",
	OpUploadTo:      "uploadTo:",
	OpDeleteNav:     "deleteNav:",
	OpDeleteConfirm: "deleteConfirm:",
	OpDeleteExecute: "deleteExecute:",
}

var bareTokens = map[string]Op{
	"noop":         OpNoop,
	"main":         OpMain,
	"myrole":       OpMyRole,
	"contact":      OpContact,
	"cancelUpload": OpCancelUpload,
}

// Encode renders an Action as its wire token.
func Encode(a Action) string {
	if prefix, ok := opPrefixes[a.Op]; ok {
		return prefix + a.Arg
	}
	for tok, op := range bareTokens {
		if op == a.Op {
			return tok
		}
	}
	return "noop"
}

// Decode parses a wire token into an Action. Unknown tokens fail; the
// caller logs and ignores them rather than guessing.
func Decode(token string) (Action, error) {
	if len(token) > chat.MaxTokenLength {
		return Action{}, fmt.Errorf("token exceeds %d bytes", chat.MaxTokenLength)
	}
	if op, ok := bareTokens[token]; ok {
		return Action{Op: op}, nil
	}
	for op, prefix := range opPrefixes {
		if strings.HasPrefix(token, prefix) {
			return Action{Op: op, Arg: token[len(prefix):]}, nil
		}
	}
	return Action{}, fmt.Errorf("unrecognized control token %q", token)
}
