package claim

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("claim not found")
	ErrValidation        = errors.New("claim validation failed")
	ErrInvalidStatus     = errors.New("invalid claim status")
	ErrInvalidTransition = errors.New("claim status transition not allowed")
)

// Charge amounts are stored as NUMERIC(12,2).
const (
	MinChargeAmount = 0.01
	MaxChargeAmount = 9999999999.99
)

type Claim struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"-"`
	Description   string    `json:"description"`
	DiagnosisCode string    `json:"diagnosisCode"`
	ProcedureCode string    `json:"procedureCode"`
	ChargeAmount  float64   `json:"chargeAmount"`
	ProviderName  string    `json:"providerName"`
	Status        Status    `json:"status"`
	OwnerUserID   string    `json:"ownerUserId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Fields are the descriptive, user supplied parts of a claim.
// The binding tags drive form validation; Validate repeats the
// required-presence rules for callers that bypass the form layer.
type Fields struct {
	Description   string  `form:"description" binding:"required,max=1000"`
	DiagnosisCode string  `form:"diagnosisCode" binding:"required,max=32"`
	ProcedureCode string  `form:"procedureCode" binding:"required,max=32"`
	ChargeAmount  float64 `form:"chargeAmount" binding:"required,gte=0.01,lte=9999999999.99"`
	ProviderName  string  `form:"providerName" binding:"required,max=120"`
}

func (f Fields) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"description", f.Description},
		{"diagnosisCode", f.DiagnosisCode},
		{"procedureCode", f.ProcedureCode},
		{"providerName", f.ProviderName},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, r.name)
		}
	}

	// NaN fails both comparisons
	if math.IsInf(f.ChargeAmount, 0) || !(f.ChargeAmount >= MinChargeAmount && f.ChargeAmount <= MaxChargeAmount) {
		return fmt.Errorf("%w: chargeAmount must be between %.2f and %.2f", ErrValidation, MinChargeAmount, MaxChargeAmount)
	}

	return nil
}

// NewFromFields builds a pending claim owned by ownerUserID.
func NewFromFields(ownerUserID string, f Fields) Claim {
	now := time.Now().UTC()

	return Claim{
		ID:            uuid.NewString(),
		Description:   strings.TrimSpace(f.Description),
		DiagnosisCode: strings.TrimSpace(f.DiagnosisCode),
		ProcedureCode: strings.TrimSpace(f.ProcedureCode),
		ChargeAmount:  f.ChargeAmount,
		ProviderName:  strings.TrimSpace(f.ProviderName),
		Status:        StatusPending,
		OwnerUserID:   ownerUserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Scope selects which claims a listing returns.
// The zero value lists every claim.
type Scope struct {
	OwnerUserID string
}

func ScopeAll() Scope {
	return Scope{}
}

func OwnedBy(userID string) Scope {
	return Scope{OwnerUserID: userID}
}

func (s Scope) IsAll() bool {
	return s.OwnerUserID == ""
}
