package qatar

import "errors"

// ErrHandlerNotFound is returned by the registry when no factory is
// registered under the requested name. Wrapped errors carry the name;
// match with errors.Is.
var ErrHandlerNotFound = errors.New("qatar: no handler registered")
