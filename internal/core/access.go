package core

// Role is the authorization axis for report visibility. The username is
// treated as data, never as an entitlement.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// FilterVisible restricts which reports a caller may see. Admins see every
// report; any other role sees only reports it submitted. This runs before
// any report leaves the service layer.
func FilterVisible(reports []Report, role Role, username string) []Report {
	if role == RoleAdmin {
		return reports
	}
	visible := make([]Report, 0, len(reports))
	for _, r := range reports {
		if r.Username == username {
			visible = append(visible, r)
		}
	}
	return visible
}
