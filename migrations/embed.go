package migrations

import "embed"

//go:embed sql/*.sql
var SQLFiles embed.FS

const Root = "sql"
