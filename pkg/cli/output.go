package cli

import (
	"encoding/json"
	"io"
)

// WriteJSON writes data to w as indented JSON with a trailing newline.
// Every sentinel subcommand that prints machine-readable results goes
// through this so the output shape stays uniform across commands.
func WriteJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
