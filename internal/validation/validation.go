package validation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"sbvc/internal/errors"
)

// maxBodyBytes bounds request bodies; every body this API accepts is a
// single small JSON object.
const maxBodyBytes = 64 << 10

type Validator interface {
	Validate() error
}

type RenameRequest struct {
	Name string `json:"name"`
}

// Validate rejects only malformed requests. Blank names are left to the
// engine so the API reports them the same way the CLI does.
func (r *RenameRequest) Validate() error {
	if len(r.Name) > 4096 {
		return errors.ValidationError("name is too long")
	}
	return nil
}

type TrackedFileRequest struct {
	Path string `json:"path"`
}

func (r *TrackedFileRequest) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return errors.ValidationError("path is required")
	}
	return nil
}

func ValidateRenameRequest(r *http.Request) (*RenameRequest, error) {
	var req RenameRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func ValidateTrackedFileRequest(r *http.Request) (*TrackedFileRequest, error) {
	var req TrackedFileRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func decode(r *http.Request, v Validator) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.ValidationError("invalid request body")
	}
	return v.Validate()
}

// ParseVersionID parses a version id from a path segment or CLI argument.
func ParseVersionID(s string) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.ValidationError("invalid version id " + strconv.Quote(s))
	}
	return uint32(id), nil
}

// ParseBool accepts an empty value as false.
func ParseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.ValidationError("invalid boolean " + strconv.Quote(s))
	}
	return b, nil
}
