package main

import (
	"bufio"
	"fmt"
	"os"
)

// consoleView is a minimal stdin/stdout implementation of ircclient.View.
// The real terminal UI is out of scope (spec §1 "Out of scope"); this is just
// enough to drive the client interactively from a shell.
type consoleView struct {
	scanner     *bufio.Scanner
	subscribers []func(string)
}

func newConsoleView() *consoleView {
	return &consoleView{scanner: bufio.NewScanner(os.Stdin)}
}

func (v *consoleView) AddMsg(user, line string) {
	fmt.Printf("<%s> %s\n", user, line)
}

func (v *consoleView) AddSubscriber(sink func(text string)) {
	v.subscribers = append(v.subscribers, sink)
}

func (v *consoleView) Run() {
	for v.scanner.Scan() {
		text := v.scanner.Text()
		if text == "" {
			continue
		}
		for _, sink := range v.subscribers {
			sink(text)
		}
	}
}
