// Package refs parses the ref-update lines git feeds to a pre-receive
// hook on standard input.
package refs

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ZeroHash is the all-zero revision git uses for "ref does not exist":
// the old side of a branch creation or the new side of a deletion.
const ZeroHash = "0000000000000000000000000000000000000000"

const hashLen = 40

// Update is one proposed ref update: `<old> <new> <ref>`.
type Update struct {
	OldHash string
	NewHash string
	RefName string
}

// IsDelete reports whether the update deletes the ref. There is nothing
// to check out for a deletion.
func (u Update) IsDelete() bool {
	return u.NewHash == ZeroHash
}

// IsCreate reports whether the update creates the ref.
func (u Update) IsCreate() bool {
	return u.OldHash == ZeroHash
}

// ParseError describes a malformed ref-update line.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed ref update %q: %s", e.Line, e.Reason)
}

// ParseUpdate parses a single ref-update line. Each line must carry
// exactly three whitespace-separated fields, the first two being
// 40-digit hex hashes or the all-zero placeholder.
func ParseUpdate(line string) (Update, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return Update{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 3 fields, got %d", len(parts))}
	}

	u := Update{OldHash: parts[0], NewHash: parts[1], RefName: parts[2]}

	if !validHash(u.OldHash) {
		return Update{}, &ParseError{Line: line, Reason: "old revision is not a 40-digit hex hash"}
	}
	if !validHash(u.NewHash) {
		return Update{}, &ParseError{Line: line, Reason: "new revision is not a 40-digit hex hash"}
	}
	if u.OldHash == ZeroHash && u.NewHash == ZeroHash {
		return Update{}, &ParseError{Line: line, Reason: "both revisions are zero"}
	}

	return u, nil
}

// ReadUpdates reads all ref-update lines from r. The first malformed
// line aborts the whole read: a hook fed garbage should reject the push
// rather than guess at what was meant.
func ReadUpdates(r io.Reader) ([]Update, error) {
	var updates []Update

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		u, err := ParseUpdate(line)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ref updates: %w", err)
	}

	return updates, nil
}

func validHash(s string) bool {
	if len(s) != hashLen {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
