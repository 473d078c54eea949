package contact

import "github.com/rotisserie/eris"

// ErrInvalidInput is returned when a record cannot be resolved because its
// last name is empty after normalization. Callers leave their contact link
// null and queue the record for later reconciliation.
var ErrInvalidInput = eris.New("contact: invalid input: last name required")
