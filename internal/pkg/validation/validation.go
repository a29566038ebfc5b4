package validation

import (
	"carbon-registry/internal/domain"
)

// Byte-length bounds for record text fields. The core enforces them itself; client
// side checks are never trusted.
const (
	MaxNameLength                 = 50
	MaxDescriptionLength          = 200
	MaxLocationLength             = 100
	MaxVerificationStandardLength = 50
	MaxMetadataURILength          = 200
	MaxReasonLength               = 200
)

// ProjectFields groups the text inputs of createProject.
type ProjectFields struct {
	Name                 string
	Description          string
	Location             string
	VerificationStandard string
	ProjectType          domain.ProjectType
}

// ValidateProject checks the createProject bounds in declaration order.
func ValidateProject(f ProjectFields) error {
	if len(f.Name) > MaxNameLength {
		return domain.ErrNameTooLong
	}
	if len(f.Description) > MaxDescriptionLength {
		return domain.ErrDescriptionTooLong
	}
	if len(f.Location) > MaxLocationLength {
		return domain.ErrLocationTooLong
	}
	if len(f.VerificationStandard) > MaxVerificationStandardLength {
		return domain.ErrVerificationStandardTooLong
	}
	if !f.ProjectType.Valid() {
		return domain.ErrInvalidProjectType
	}
	return nil
}

func ValidateMetadataURI(uri string) error {
	if len(uri) > MaxMetadataURILength {
		return domain.ErrMetadataURITooLong
	}
	return nil
}

func ValidateReason(reason string) error {
	if len(reason) > MaxReasonLength {
		return domain.ErrReasonTooLong
	}
	return nil
}

// ValidateAmount rejects zero-unit issuances, retirements and transfers.
func ValidateAmount(amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}
