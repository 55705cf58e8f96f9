package app

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"validatetest/internal/core/ports"
	"validatetest/internal/engine/tree"
)

// Export serialises t. JSON and YAML carry named nodes with their byte
// ranges and leaf text; comments are dropped like in the S-expression.
func Export(t *tree.Tree, f ports.ExportFormat) ([]byte, error) {
	switch f {
	case ports.ExportSExpr, "":
		return []byte(t.SExpr(t.Root()) + "\n"), nil
	case ports.ExportJSON:
		out, err := json.MarshalIndent(t.Export(t.Root(), false), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case ports.ExportYAML:
		return yaml.Marshal(t.Export(t.Root(), false))
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}
