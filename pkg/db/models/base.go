package models

import (
	"github.com/google/uuid"
)

// ensureID assigns a fresh UUID when the primary key has not been set by the
// caller. Postgres also defaults ids, but SQLite test databases do not.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
