package core

// Credential is one row of the page-keyed credential store. The password is
// held in its reversibly-encoded form; verification is an exact match on the
// encoded string. This mirrors the external contract of the legacy store and
// is not a cryptographic design.
type Credential struct {
	Page        string
	PasswordEnc string
	Role        Role
}

// Credential pages. The admin page carries the admin role; the report page
// is what operators unlock to submit day reports.
const (
	PageAdmin  = "admin"
	PageReport = "report"
)
