package ircclient

// View is the terminal/UI collaborator the client depends on. The real
// rendering is out of scope (spec §1 "Out of scope"); the client only needs
// something that can display a line attributed to a user and that can
// publish lines of user input back (REDESIGN FLAGS "duck-typed view
// collaborator").
type View interface {
	// AddMsg displays one line of output, attributed to user (which may be
	// "SYSTEM" for client-generated notices).
	AddMsg(user, line string)

	// Run starts the view's own input loop. It blocks until the view is
	// closed; implementations typically read stdin and call every
	// subscriber registered via AddSubscriber for each line read.
	Run()

	// AddSubscriber registers sink to be called with each line of user
	// input the view collects.
	AddSubscriber(sink func(text string))
}
