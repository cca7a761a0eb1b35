package errutil

import (
	"errors"
	"strings"
	"sync"
)

// Group collects errors from fan-out paths, ignoring nils. Safe for
// concurrent use.
type Group interface {
	Add(e error)
	Err() error
}

type group struct {
	l    sync.Mutex
	errs []error
}

func NewGroup() Group {
	return &group{}
}

func (m *group) Add(e error) {
	if e == nil {
		return
	}
	m.l.Lock()
	defer m.l.Unlock()
	m.errs = append(m.errs, e)
}

func (m *group) Err() error {
	m.l.Lock()
	defer m.l.Unlock()
	if len(m.errs) == 0 {
		return nil
	}
	if len(m.errs) == 1 {
		return m.errs[0]
	}
	msgs := make([]string, 0, len(m.errs))
	for _, err := range m.errs {
		msgs = append(msgs, err.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}
