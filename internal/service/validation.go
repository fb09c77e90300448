package service

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

// registerEnumValidations installs the enum tags used by request payloads.
// Registering twice on the same validator replaces the previous function.
func registerEnumValidations(v *validator.Validate) *validator.Validate {
	if v == nil {
		v = validator.New()
	}
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("student_status", enumValidation(
		models.StudentStatusActive, models.StudentStatusCompleted, models.StudentStatusDropped))
	_ = v.RegisterValidation("project_status", enumValidation(
		models.ProjectStatusActive, models.ProjectStatusCompleted, models.ProjectStatusOnHold))
	_ = v.RegisterValidation("member_status", enumValidation(
		models.MemberStatusActive, models.MemberStatusInactive))
	_ = v.RegisterValidation("attendance_status", enumValidation(
		models.AttendancePresent, models.AttendanceLate, models.AttendanceAbsent, models.AttendanceAbsentWithReason))
	_ = v.RegisterValidation("requisition_category", enumValidation(
		models.RequisitionEquipment, models.RequisitionSupplies, models.RequisitionServices, models.RequisitionOther))
	_ = v.RegisterValidation("requisition_priority", enumValidation(
		models.PriorityLow, models.PriorityMedium, models.PriorityHigh))
	_ = v.RegisterValidation("notification_type", enumValidation(
		models.NotificationDeletionRequest, models.NotificationRequisition, models.NotificationProject,
		models.NotificationStudent, models.NotificationAttendance, models.NotificationTeam, models.NotificationGeneral))
	return v
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		name = strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
	}
	return name
}

func enumValidation[T ~string](allowed ...T) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := T(fl.Field().String())
		for _, candidate := range allowed {
			if candidate == value {
				return true
			}
		}
		return false
	}
}

func validationError(err error, message string) error {
	return appErrors.Validation(err, message)
}

func parseDate(value, field string) (time.Time, error) {
	parsed, err := time.Parse(dto.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, validationError(err, field+" must be formatted as YYYY-MM-DD")
	}
	return parsed, nil
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
