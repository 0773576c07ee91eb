package migrate

import (
	"embed"
	"io/fs"
)

//go:embed sql/migrations/*.sql sql/seeds/*.sql
var embedded embed.FS

// Files holds the schema and seed set shipped with the service.
var Files fs.FS

func init() {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	Files = sub
}
