package module

import (
	"strings"

	"github.com/sarchlab/pipesim/sim/naming"
)

type logMode int

const (
	logUnchanged logMode = iota
	logForceOn
	logForceOff
)

type logSelector struct {
	on  map[string]bool
	off map[string]bool
}

func parseLogSelector(selector string) logSelector {
	s := logSelector{
		on:  make(map[string]bool),
		off: make(map[string]bool),
	}

	for _, token := range strings.Split(selector, naming.SelectorSeparator) {
		token = strings.TrimSpace(token)

		if name, negated := strings.CutPrefix(token, naming.SelectorNegation); negated {
			if name != "" {
				s.off[name] = true
			}

			continue
		}

		if token != "" {
			s.on[token] = true
		}
	}

	return s
}

// EnableLogging switches module logs according to a selector, a comma
// separated list of module names where a leading "!" means off. A module named
// in the selector has its whole subtree switched. Off always wins: a module
// switched off takes its subtree with it, even if a descendant is named on.
// Modules outside any selected subtree keep their state.
func (r *Root) EnableLogging(selector string) {
	s := parseLogSelector(selector)
	r.applyLogging(r.Module, s, logUnchanged)
}

func (r *Root) applyLogging(m Module, s logSelector, inherited logMode) {
	mode := inherited

	if mode != logForceOff {
		switch name := m.Name(); {
		case s.off[name]:
			mode = logForceOff
		case s.on[name]:
			mode = logForceOn
		}
	}

	switch mode {
	case logForceOn:
		m.Log().Enable()
	case logForceOff:
		m.Log().Disable()
	}

	for _, c := range m.Children() {
		r.applyLogging(c, s, mode)
	}
}
