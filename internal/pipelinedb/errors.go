package pipelinedb

import "github.com/rotisserie/eris"

// Sentinel errors. Callers match them with errors.Is; returned errors wrap
// them with detail.
var (
	ErrAlreadyImported      = eris.New("file already imported")
	ErrImportLocked         = eris.New("import lock held by another process")
	ErrConfirmationRequired = eris.New("confirmation required")
	ErrNotFound             = eris.New("not found")
	ErrAlreadyRolledBack    = eris.New("import already rolled back")
)
