// Package all registers every catalog storage backend. Import it for side
// effects from binaries:
//
//	import _ "github.com/mairanteodoro/roman-photoz/internal/storage/all"
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "github.com/mairanteodoro/roman-photoz/internal/storage/mssql"
	_ "github.com/mairanteodoro/roman-photoz/internal/storage/postgres"
	_ "github.com/mairanteodoro/roman-photoz/internal/storage/sqlite"
)
