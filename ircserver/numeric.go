package ircserver

// Numeric reply codes the server emits (spec §6).
const (
	ReplyNameReply      = "353"
	ReplyEndOfNames     = "366"
	ErrNoNicknameGiven  = "431"
	ErrErroneusNickname = "432"
	ErrNicknameInUse    = "433"
	ErrNickCollision    = "436"
	ErrNeedMoreParams   = "461"
	ErrAlreadyRegistrd  = "462"
	ErrNoTextToSend     = "412"
)
