package api

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cleared-dev/stmtimport/internal/ingest"
)

// DecodeByteList decodes the legacy upload form: the file's bytes as
// comma-separated decimal values ("59,65,66"). Whitespace around tokens and
// a trailing newline are tolerated.
func DecodeByteList(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []byte{}, nil
	}
	tokens := bytes.Split(body, []byte{','})
	out := make([]byte, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseUint(string(bytes.TrimSpace(tok)), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: byte %d: %q is not a value in 0-255", ingest.ErrTransport, i, tok)
		}
		out[i] = byte(v)
	}
	return out, nil
}
