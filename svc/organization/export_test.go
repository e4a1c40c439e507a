package organization

var ErrInviteCodeTaken = errInviteCodeTaken
