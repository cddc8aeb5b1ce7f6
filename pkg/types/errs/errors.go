package errs

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")

	ErrInvalidFormat   = errors.New("invalid image format")
	ErrPayloadTooLarge = errors.New("payload too large")

	ErrAlreadyClassified = errors.New("diagnosis already classified")
	ErrNotYetClassified  = errors.New("diagnosis not yet classified")

	ErrUnknownLabel  = errors.New("unknown disease label")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrDecodeImage   = errors.New("image cannot be decoded")
)

// Transient marks infrastructure failures the caller may retry.
type Transient struct {
	Err error
}

func (t *Transient) Error() string {
	return t.Err.Error()
}

func (t *Transient) Unwrap() error {
	return t.Err
}

func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}
