// Package all registers every storage backend. Commands blank-import it.
package all

import (
	_ "civicdata/internal/storage/mssql"
	_ "civicdata/internal/storage/postgres"
	_ "civicdata/internal/storage/sqlite"
)
