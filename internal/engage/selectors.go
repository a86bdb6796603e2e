// internal/engage/selectors.go
package engage

import "fmt"

// Instagram page anchors. These track the rendered DOM, not any API, and
// are the first thing to check when the bot stops finding elements.
const (
	baseURL  = "https://www.instagram.com"
	loginURL = baseURL + "/accounts/login/"

	selUsernameInput = `input[name="username"]`
	selPasswordInput = `input[name="password"]`
	selMainFeed      = `main[role="main"]`
	selLikeButton    = `svg[aria-label="Like"]`
	selUnlikeButton  = `svg[aria-label="Unlike"]`
	selCommentBox    = `textarea[aria-label="Add a comment…"]`
	selCloseButton   = `svg[aria-label="Close"]`
)

// dismissLabels are the button texts of the interstitial dialogs Instagram
// shows after login ("save your login info", notification prompts).
var dismissLabels = []string{"Not Now", "Not now"}

func profileURL(username string) string {
	return fmt.Sprintf("%s/%s/", baseURL, username)
}

func postURL(href string) string {
	return baseURL + href
}

func postAnchor(href string) string {
	return fmt.Sprintf(`a[href=%q]`, href)
}
