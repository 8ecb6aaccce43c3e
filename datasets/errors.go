package datasets

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfig is matched (errors.Is) by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoImages is returned when the directory holds no image in any class
	// subdirectory.
	ErrNoImages = errors.New("no images found")
)

// ConfigError reports an invalid combination of Options. Arg names the
// offending option.
type ConfigError struct {
	Arg string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Arg, e.Msg)
}

// Is makes errors.Is(err, ErrInvalidConfig) true.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErrorf(arg, format string, args ...any) error {
	return &ConfigError{Arg: arg, Msg: fmt.Sprintf(format, args...)}
}
