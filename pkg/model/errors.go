package model

import (
	"errors"
	"fmt"

	"github.com/ossia-go/paramtree/pkg/value"
)

// Tree errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("duplicate name")
	ErrUnsupported   = errors.New("unsupported operation")
	ErrTransport     = errors.New("transport error")
	ErrRemoved       = errors.New("node removed")
	ErrAccessDenied  = errors.New("access denied")
	ErrInvalidName   = fmt.Errorf("%w: invalid node name", value.ErrInvalidArgument)
)
