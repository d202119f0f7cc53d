package ruledef

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Decode parses a definition file from r and validates its structure.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse definition file: %w", err)
	}
	if err := validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DecodeFile reads and parses the definition file at path.
func DecodeFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition file: %w", err)
	}
	defer fh.Close()
	f, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Encode writes a definition file to w as YAML.
func Encode(w io.Writer, f *File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode definition file: %w", err)
	}
	return enc.Close()
}

// EncodeSnapshot writes an export snapshot to w as YAML.
func EncodeSnapshot(w io.Writer, s *ExportSnapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode export snapshot: %w", err)
	}
	return enc.Close()
}

// DecodeSnapshot parses an export snapshot from r.
func DecodeSnapshot(r io.Reader) (*ExportSnapshot, error) {
	var s ExportSnapshot
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse export snapshot: %w", err)
	}
	return &s, nil
}

// validate runs struct validation over a decoded file.
func validate(f *File) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid definition file: field %s failed %q validation", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("invalid definition file: %w", err)
	}
	return nil
}
