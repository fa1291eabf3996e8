package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	MaxFileNameLength = 255
	MaxUsernameLength = 64
	MaxPasswordLength = 128

	// ErrInvalidRequest is wrapped by every request validation failure
	ErrInvalidRequest = errors.New("invalid request")
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("filename", func(fl validator.FieldLevel) bool {
		return ValidateFileName(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidateUsername(fl.Field().String()) == nil
	})
}

// Validator exposes the shared validator so other packages can check their
// own tagged structs (configuration, for one).
func Validator() *validator.Validate {
	return validate
}

// CredentialsRequest carries a username/password pair (login, account creation)
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,max=128"`
}

// FileRequest names a file and optionally carries its bytes
type FileRequest struct {
	Name    string `json:"name" validate:"required,filename"`
	Content []byte `json:"content,omitempty"`
}

// ValidateCredentials validates a login or account creation request
func ValidateCredentials(req *CredentialsRequest) error {
	if req == nil {
		return fmt.Errorf("%w: credentials cannot be nil", ErrInvalidRequest)
	}
	return Struct(req)
}

// ValidateFile validates a request addressing one file
func ValidateFile(req *FileRequest) error {
	if req == nil {
		return fmt.Errorf("%w: file request cannot be nil", ErrInvalidRequest)
	}
	return Struct(req)
}

// Struct validates any tagged struct and formats the first failure.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateFileName rejects names that could escape the storage directory.
func ValidateFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: file name cannot be empty", ErrInvalidRequest)
	case len(name) > MaxFileNameLength:
		return fmt.Errorf("%w: file name exceeds %d characters", ErrInvalidRequest, MaxFileNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: file name %q is reserved", ErrInvalidRequest, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: file name %q contains a path separator or NUL", ErrInvalidRequest, name)
	}
	return nil
}

// ValidateUsername validates an account username
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidRequest)
	}
	if len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidRequest, MaxUsernameLength)
	}
	for _, r := range username {
		if r <= ' ' || r == '/' || r == 0x7f {
			return fmt.Errorf("%w: username %q contains invalid characters", ErrInvalidRequest, username)
		}
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%w: %s: field is required", ErrInvalidRequest, field)
		case "min":
			return fmt.Errorf("%w: %s: must be at least %s", ErrInvalidRequest, field, e.Param())
		case "max":
			return fmt.Errorf("%w: %s: must not exceed %s", ErrInvalidRequest, field, e.Param())
		case "filename":
			return fmt.Errorf("%w: %s: not a valid file name", ErrInvalidRequest, field)
		case "username":
			return fmt.Errorf("%w: %s: not a valid username", ErrInvalidRequest, field)
		default:
			return fmt.Errorf("%w: %s: validation failed (%s)", ErrInvalidRequest, field, e.Tag())
		}
	}
	return err
}
