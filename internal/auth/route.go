package auth

type Page string

const (
	PageLoading   Page = "loading"
	PageLanding   Page = "landing"
	PageAuth      Page = "auth"
	PageDashboard Page = "dashboard"
)

// Route picks the page to show for a session state. current is the page the
// user is on; an anonymous user may stay on the auth page.
func Route(st State, current Page) Page {
	switch {
	case st.Loading:
		return PageLoading
	case st.Identity != nil:
		return PageDashboard
	case current == PageAuth:
		return PageAuth
	default:
		return PageLanding
	}
}

func ParsePage(s string) (Page, bool) {
	switch p := Page(s); p {
	case PageLoading, PageLanding, PageAuth, PageDashboard:
		return p, true
	}
	return "", false
}
