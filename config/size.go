package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/rvtlb/mem/mem"
)

// Size is a byte count written either as a plain number or with a KB, MB or
// GB suffix.
type Size uint64

var sizeUnits = []struct {
	suffix string
	scale  uint64
}{
	{"GB", mem.GB},
	{"MB", mem.MB},
	{"KB", mem.KB},
	{"B", 1},
}

// ParseSize parses strings such as "4096", "64KB" or "1GB".
func ParseSize(s string) (Size, error) {
	str := strings.ToUpper(strings.TrimSpace(s))
	scale := uint64(1)

	for _, u := range sizeUnits {
		if strings.HasSuffix(str, u.suffix) {
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			scale = u.scale

			break
		}
	}

	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	return Size(n * scale), nil
}

// String prints the size with the largest unit that divides it.
func (s Size) String() string {
	for _, u := range sizeUnits {
		if uint64(s) >= u.scale && uint64(s)%u.scale == 0 {
			return fmt.Sprintf("%d%s", uint64(s)/u.scale, u.suffix)
		}
	}

	return "0B"
}

// UnmarshalYAML accepts both numbers and suffixed strings.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	size, err := ParseSize(value.Value)
	if err != nil {
		return err
	}

	*s = size

	return nil
}

// MarshalYAML writes the suffixed form.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Set implements pflag.Value so a Size can be bound to a flag.
func (s *Size) Set(v string) error {
	size, err := ParseSize(v)
	if err != nil {
		return err
	}

	*s = size

	return nil
}

// Type implements pflag.Value.
func (s *Size) Type() string {
	return "size"
}
