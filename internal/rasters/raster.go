package rasters

import (
	"fmt"
	"strings"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	statusProcessingValueConstant        = "processing"
	statusReadyValueConstant             = "ready"
	statusFailedValueConstant            = "failed"
	cloneCheckScopeAccountValueConstant  = "account"
	cloneCheckScopeFolderValueConstant   = "folder"
	checkExistingFieldNameConstant       = "check_existing"
	unsupportedScopeMessageTemplate      = "unsupported scope %q (expected account or folder)"
	duplicateRasterErrorTemplateConstant = "raster with identity key %s already uploaded as %s"
	rasterFailedErrorTemplateConstant    = "raster %s processing failed"
	rasterNotReadyErrorTemplateConstant  = "raster %s not ready: %w"
	rasterStatusPendingMessageConstant   = "raster processing"
	rasterStatusLogFieldNameConstant     = "raster_status"
	rasterIdentifierLogFieldNameConstant = "raster_id"
	identityKeyLogFieldNameConstant      = "identity_key"
	folderIdentifierLogFieldNameConstant = "folder_id"
	mediaTypeLogFieldNameConstant        = "media_type"
	pathLogFieldNameConstant             = "path"
	checkScopeLogFieldNameConstant       = "check_scope"
	rastersResourceConstant              = "rasters"
)

// Status describes the processing lifecycle of a raster.
type Status string

// Raster status enumerations.
const (
	StatusProcessing Status = Status(statusProcessingValueConstant)
	StatusReady      Status = Status(statusReadyValueConstant)
	StatusFailed     Status = Status(statusFailedValueConstant)
)

// Raster is an uploaded image as reported by the API.
type Raster struct {
	ID            apiclient.Identifier `json:"id"`
	Name          string               `json:"name"`
	Status        Status               `json:"status,omitempty"`
	FolderID      apiclient.Identifier `json:"folder_id,omitempty"`
	CapturedAt    string               `json:"captured_at,omitempty"`
	IdentityKey   string               `json:"identity_key,omitempty"`
	Multispectral bool                 `json:"multispectral,omitempty"`
}

// CloneCheckScope selects which rasters are compared when looking for duplicates.
type CloneCheckScope string

// Clone check scope enumerations.
const (
	CloneCheckScopeAccount CloneCheckScope = CloneCheckScope(cloneCheckScopeAccountValueConstant)
	CloneCheckScopeFolder  CloneCheckScope = CloneCheckScope(cloneCheckScopeFolderValueConstant)
)

// CloneCheckScopeChoices lists the accepted clone check scope names.
func CloneCheckScopeChoices() []string {
	return []string{cloneCheckScopeAccountValueConstant, cloneCheckScopeFolderValueConstant}
}

// ParseCloneCheckScope interprets a textual scope, defaulting to the whole account.
func ParseCloneCheckScope(scopeValue string) (CloneCheckScope, error) {
	switch strings.ToLower(strings.TrimSpace(scopeValue)) {
	case "", cloneCheckScopeAccountValueConstant:
		return CloneCheckScopeAccount, nil
	case cloneCheckScopeFolderValueConstant:
		return CloneCheckScopeFolder, nil
	default:
		return "", apiclient.InvalidInputError{
			FieldName: checkExistingFieldNameConstant,
			Message:   fmt.Sprintf(unsupportedScopeMessageTemplate, scopeValue),
		}
	}
}

// UploadRequest describes a raster upload.
type UploadRequest struct {
	FilePath      string
	Name          string
	FolderID      string
	CapturedAt    string
	IdentityKey   string
	Multispectral bool
	CheckScope    CloneCheckScope
}

// EditRequest carries the raster attributes to change. Nil fields are left untouched.
type EditRequest struct {
	Name        *string `json:"name,omitempty"`
	FolderID    *string `json:"folder_id,omitempty"`
	CapturedAt  *string `json:"captured_at,omitempty"`
	IdentityKey *string `json:"identity_key,omitempty"`
}

func (request EditRequest) isEmpty() bool {
	return request.Name == nil && request.FolderID == nil && request.CapturedAt == nil && request.IdentityKey == nil
}

// DuplicateRasterError reports an upload whose identity key matches an existing raster.
type DuplicateRasterError struct {
	IdentityKey      string
	ExistingRasterID apiclient.Identifier
}

// Error describes the duplicate.
func (duplicateError DuplicateRasterError) Error() string {
	return fmt.Sprintf(duplicateRasterErrorTemplateConstant, duplicateError.IdentityKey, duplicateError.ExistingRasterID)
}

// RasterFailedError reports a raster whose server-side processing failed.
type RasterFailedError struct {
	RasterID apiclient.Identifier
}

// Error describes the failure.
func (failedError RasterFailedError) Error() string {
	return fmt.Sprintf(rasterFailedErrorTemplateConstant, failedError.RasterID)
}

type uploadPayload struct {
	Name          string `json:"name"`
	FolderID      string `json:"folder_id,omitempty"`
	CapturedAt    string `json:"captured_at,omitempty"`
	IdentityKey   string `json:"identity_key,omitempty"`
	Multispectral bool   `json:"multispectral"`
}

type rasterUploadTicket struct {
	UploadURL string               `json:"upload_url"`
	RasterID  apiclient.Identifier `json:"raster_id"`
}

type detectionAreaUploadTicket struct {
	UploadURL string               `json:"upload_url"`
	UploadID  apiclient.Identifier `json:"upload_id"`
}
