// Package threadid maps local conversation ids to external CRM thread
// ids. The mapping is deterministic string concatenation, so translation
// is pure and survives reconnects without a stored mapping table.
package threadid

import (
	"fmt"
	"strconv"
	"strings"
)

// Mapper formats and parses external thread ids for one prefix.
type Mapper struct {
	prefix string
}

func NewMapper(prefix string) Mapper {
	return Mapper{prefix: prefix}
}

// Format returns the external thread id for a local conversation id.
func (m Mapper) Format(conversationID int64) string {
	return m.prefix + strconv.FormatInt(conversationID, 10)
}

// Parse extracts the local conversation id from an external thread id.
// Unparseable or non-positive ids are rejected.
func (m Mapper) Parse(externalThreadID string) (int64, error) {
	rest, ok := strings.CutPrefix(externalThreadID, m.prefix)
	if !ok {
		return 0, fmt.Errorf("thread id %q does not carry prefix %q", externalThreadID, m.prefix)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("thread id %q is not numeric: %w", externalThreadID, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("thread id %q maps to non-positive conversation id", externalThreadID)
	}
	return id, nil
}
