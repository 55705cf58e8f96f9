package language

import (
	"embed"
	"io/fs"
	"path"
)

//go:embed queries
var queries embed.FS

// embeddedQuery returns queries/<lang>/<role>.scm, or "" when the file does not exist.
func embeddedQuery(lang, role string) string {
	data, err := fs.ReadFile(queries, path.Join("queries", lang, role+".scm"))
	if err != nil {
		return ""
	}
	return string(data)
}
