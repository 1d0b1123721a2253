package v1

import (
	"github.com/tinoosan/tripsettle/internal/storage/memory"
	"github.com/tinoosan/tripsettle/internal/storage/postgres"
)

// Compile-time checks that both stores satisfy the API's persistence union.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)
