package chathub

import "debatechat/backend/internal/models"

// Target decides where a client on page should be sent, given the server's
// view of the user and their partner. It returns PageNone when the client
// should stay put. markTutorial is set when the target is the tutorial; the
// caller must record that the tutorial was shown.
//
// Target is pure: the same inputs always give the same answer, so it is safe
// to re-evaluate on every connect and every view submission.
func Target(user, partner *models.User, page models.Page) (target models.Page, markTutorial bool) {
	switch {
	case page == models.PageTutorial:
		return models.PageNone, false
	case user == nil || !user.IsMatched():
		return models.PageNone, false
	case !user.HasView():
		return models.PageView, false
	case partner != nil && partner.HasView():
		return models.PageChatroom, false
	case page == models.PageView:
		return models.PageWaiting, false
	case user.NeedsTutorial():
		return models.PageTutorial, true
	}
	return models.PageNone, false
}
