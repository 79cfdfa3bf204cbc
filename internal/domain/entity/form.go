package entity

import "fmt"

// FormType identifies a document template
type FormType string

const (
	FormTypeAAEScreening FormType = "AAE_SCREENING"
	FormTypeDD2760       FormType = "DD2760"
	FormTypeNavpers3591  FormType = "NAVPERS_3591_1"
)

// SignatureField describes where and why a role signs a given form
type SignatureField struct {
	FieldName string
	Purpose   string
	Page      int
}

type formRoleKey struct {
	form FormType
	role Role
}

var signatureFields = map[formRoleKey]SignatureField{
	{FormTypeAAEScreening, RoleMedical}: {
		FieldName: "MedicalReviewerSignature",
		Purpose:   "Medical screening review for AA&E duties",
		Page:      1,
	},
	{FormTypeAAEScreening, RoleAAE}: {
		FieldName: "AAEScreeningOfficialSignature",
		Purpose:   "AA&E screening approval",
		Page:      1,
	},
	{FormTypeDD2760, RoleMember}: {
		FieldName: "MemberSignature",
		Purpose:   "Member certification of firearms eligibility",
		Page:      1,
	},
	{FormTypeDD2760, RoleCommandingOfficer}: {
		FieldName: "CommanderSignature",
		Purpose:   "Commander acknowledgement of firearms eligibility",
		Page:      1,
	},
	{FormTypeNavpers3591, RoleArmsOfficer}: {
		FieldName: "RangeSafetyOfficerSignature",
		Purpose:   "Small arms qualification score certification",
		Page:      1,
	},
	{FormTypeNavpers3591, RoleCommandingOfficer}: {
		FieldName: "CommandingOfficerSignature",
		Purpose:   "Commanding officer approval of qualification record",
		Page:      1,
	},
}

// LookupSignatureField resolves the field, purpose, and page for a role on a form.
// Unknown pairs get a fresh field on the first page.
func LookupSignatureField(form FormType, role Role) SignatureField {
	if f, ok := signatureFields[formRoleKey{form, role}]; ok {
		return f
	}
	return SignatureField{
		Purpose: fmt.Sprintf("Signed as %s", role),
		Page:    1,
	}
}
