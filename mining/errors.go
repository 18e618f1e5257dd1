package mining

import "errors"

// ErrValidationUnsupported is returned by Assembler.CreateNewBlock when the
// caller requests full block validation.  This assembler only ever performs
// candidate selection.
var ErrValidationUnsupported = errors.New("mining: block validation is not supported by this assembler")
