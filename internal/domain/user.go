package domain

// Session is the verified identity attached to a request
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// RequestMeta is what the server observes about an incoming request
type RequestMeta struct {
	IP        string
	UserAgent string
	Referrer  string
	Session   *Session
}

// Authenticated reports whether the request carried a verified session
func (m RequestMeta) Authenticated() bool {
	return m.Session != nil && m.Session.UserID != ""
}
