// Package journey models navigation steps and the journeys chained from them,
// together with the keys used to deduplicate both before and after they are
// persisted.
package journey

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/raysh454/glimpse/internal/fingerprint"
	"github.com/raysh454/glimpse/internal/page"
)

var (
	ErrInvalidInput = errors.New("journey: invalid input")
	// ErrNotPersisted is returned by Key when a component has no durable ID yet.
	ErrNotPersisted = errors.New("journey: not every component is persisted")
)

// InvalidInputError names the missing or malformed component.
type InvalidInputError struct {
	Kind  Kind
	Field string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("journey: invalid input: %s step requires %s", e.Kind, e.Field)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

type Kind string

const (
	KindLanding  Kind = "landing"
	KindSimple   Kind = "simple"
	KindLogin    Kind = "login"
	KindRedirect Kind = "redirect"
)

type Status string

const (
	StatusCandidate Status = "CANDIDATE"
	StatusConfirmed Status = "CONFIRMED"
	StatusDiscarded Status = "DISCARDED"
)

type Action string

const (
	ActionClick       Action = "click"
	ActionHover       Action = "hover"
	ActionType        Action = "type"
	ActionDoubleClick Action = "doubleclick"
	ActionFocus       Action = "focus"
	ActionSubmit      Action = "submit"
)

func (a Action) Valid() bool {
	switch a {
	case ActionClick, ActionHover, ActionType, ActionDoubleClick, ActionFocus, ActionSubmit:
		return true
	}
	return false
}

// PageRef points at a captured page. Key is content identity, ID is the
// durable storage ID and stays empty until the page is saved.
type PageRef struct {
	Key string `json:"key"`
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

type ElementRef struct {
	Key     string `json:"key"`
	ID      string `json:"id,omitempty"`
	Locator string `json:"locator,omitempty"`
}

// UserRef identifies the test identity used for a login.
type UserRef struct {
	Key      string `json:"key"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

func PageRefOf(p *page.PageState) PageRef {
	return PageRef{Key: p.Key(), URL: p.URL()}
}

func ElementRefOf(el page.ElementState) ElementRef {
	return ElementRef{Key: el.Key(), Locator: el.Locator()}
}

func UserRefFor(username string) UserRef {
	return UserRef{Key: fingerprint.Of(fingerprint.TestUser, username), Username: username}
}

type Landing struct {
	Page PageRef `json:"page"`
}

type Simple struct {
	Start   PageRef    `json:"start"`
	Element ElementRef `json:"element"`
	Action  Action     `json:"action"`
	Input   string     `json:"input,omitempty"`
	End     PageRef    `json:"end"`
}

type Login struct {
	Start    PageRef    `json:"start"`
	Username ElementRef `json:"username"`
	Password ElementRef `json:"password"`
	Submit   ElementRef `json:"submit"`
	End      PageRef    `json:"end"`
	User     UserRef    `json:"user"`
}

type Redirect struct {
	Origin string   `json:"origin"`
	URLs   []string `json:"urls"`
}

// Step is one navigation action. Exactly one of the variant pointers is set,
// matching Kind. Steps are shared by pointer; a Step must not be copied.
type Step struct {
	mu sync.Mutex

	kind   Kind
	status Status
	id     string

	landing  *Landing
	simple   *Simple
	login    *Login
	redirect *Redirect

	candidateKey string
	key          string
}

func NewLandingStep(p PageRef) (*Step, error) {
	if p.Key == "" {
		return nil, &InvalidInputError{Kind: KindLanding, Field: "page"}
	}
	s := &Step{kind: KindLanding, status: StatusCandidate, landing: &Landing{Page: p}}
	s.candidateKey = s.hash(false)
	return s, nil
}

func NewSimpleStep(start PageRef, el ElementRef, action Action, input string, end PageRef) (*Step, error) {
	switch {
	case start.Key == "":
		return nil, &InvalidInputError{Kind: KindSimple, Field: "start page"}
	case el.Key == "":
		return nil, &InvalidInputError{Kind: KindSimple, Field: "element"}
	case end.Key == "":
		return nil, &InvalidInputError{Kind: KindSimple, Field: "end page"}
	case !action.Valid():
		return nil, &InvalidInputError{Kind: KindSimple, Field: "a known action"}
	}
	s := &Step{kind: KindSimple, status: StatusCandidate, simple: &Simple{
		Start: start, Element: el, Action: action, Input: input, End: end,
	}}
	s.candidateKey = s.hash(false)
	return s, nil
}

func NewLoginStep(start PageRef, username, password, submit ElementRef, end PageRef, user UserRef) (*Step, error) {
	switch {
	case start.Key == "":
		return nil, &InvalidInputError{Kind: KindLogin, Field: "start page"}
	case username.Key == "":
		return nil, &InvalidInputError{Kind: KindLogin, Field: "username element"}
	case password.Key == "":
		return nil, &InvalidInputError{Kind: KindLogin, Field: "password element"}
	case submit.Key == "":
		return nil, &InvalidInputError{Kind: KindLogin, Field: "submit element"}
	case end.Key == "":
		return nil, &InvalidInputError{Kind: KindLogin, Field: "end page"}
	case user.Key == "":
		return nil, &InvalidInputError{Kind: KindLogin, Field: "test user"}
	}
	s := &Step{kind: KindLogin, status: StatusCandidate, login: &Login{
		Start: start, Username: username, Password: password, Submit: submit, End: end, User: user,
	}}
	s.candidateKey = s.hash(false)
	return s, nil
}

// NewRedirectStep strips the query from origin and drops immediate repeats
// from the intermediate chain.
func NewRedirectStep(origin string, urls []string) (*Step, error) {
	origin = page.StripQuery(strings.TrimSpace(origin))
	if origin == "" {
		return nil, &InvalidInputError{Kind: KindRedirect, Field: "origin url"}
	}
	chain := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if n := len(chain); n > 0 && chain[n-1] == u {
			continue
		}
		chain = append(chain, u)
	}
	s := &Step{kind: KindRedirect, status: StatusCandidate, redirect: &Redirect{Origin: origin, URLs: chain}}
	s.candidateKey = s.hash(false)
	return s, nil
}

func (s *Step) Kind() Kind { return s.kind }

func (s *Step) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Discard marks the step as not worth exploring further.
func (s *Step) Discard() {
	s.mu.Lock()
	s.status = StatusDiscarded
	s.mu.Unlock()
}

// ID is the durable storage ID, empty until saved.
func (s *Step) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// CandidateKey is derived from component content keys and is available from
// construction onwards.
func (s *Step) CandidateKey() string { return s.candidateKey }

// Key returns the confirmed key, derived from the durable IDs of every
// component. It is computed on first call after all components are persisted
// and cached; until then it returns ErrNotPersisted.
func (s *Step) Key() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != "" {
		return s.key, nil
	}
	if !s.persistedLocked() {
		return "", ErrNotPersisted
	}
	s.key = s.hash(true)
	return s.key, nil
}

func (s *Step) Landing() (Landing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.landing == nil {
		return Landing{}, false
	}
	return *s.landing, true
}

func (s *Step) Simple() (Simple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simple == nil {
		return Simple{}, false
	}
	return *s.simple, true
}

func (s *Step) Login() (Login, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.login == nil {
		return Login{}, false
	}
	return *s.login, true
}

func (s *Step) Redirect() (Redirect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redirect == nil {
		return Redirect{}, false
	}
	return Redirect{Origin: s.redirect.Origin, URLs: append([]string(nil), s.redirect.URLs...)}, true
}

func (s *Step) persistedLocked() bool {
	switch s.kind {
	case KindLanding:
		return s.landing.Page.ID != ""
	case KindSimple:
		v := s.simple
		return v.Start.ID != "" && v.Element.ID != "" && v.End.ID != ""
	case KindLogin:
		v := s.login
		return v.Start.ID != "" && v.Username.ID != "" && v.Password.ID != "" &&
			v.Submit.ID != "" && v.End.ID != "" && v.User.ID != ""
	case KindRedirect:
		return true
	}
	return false
}

// hash derives the step fingerprint from component IDs (durable) or component
// keys (candidate). Redirects have no components, so both agree.
func (s *Step) hash(durable bool) string {
	pick := func(key, id string) string {
		if durable {
			return id
		}
		return key
	}
	switch s.kind {
	case KindLanding:
		p := s.landing.Page
		return fingerprint.Of(fingerprint.Step, string(KindLanding), pick(p.Key, p.ID))
	case KindSimple:
		v := s.simple
		return fingerprint.Of(fingerprint.Step, string(KindSimple),
			pick(v.Start.Key, v.Start.ID),
			pick(v.Element.Key, v.Element.ID),
			pick(v.End.Key, v.End.ID),
			string(v.Action),
			v.Input,
		)
	case KindLogin:
		v := s.login
		return fingerprint.Of(fingerprint.Step, string(KindLogin),
			pick(v.Start.Key, v.Start.ID),
			pick(v.Username.Key, v.Username.ID),
			pick(v.Password.Key, v.Password.ID),
			pick(v.Submit.Key, v.Submit.ID),
			pick(v.End.Key, v.End.ID),
			pick(v.User.Key, v.User.ID),
		)
	case KindRedirect:
		parts := append([]string{string(KindRedirect), s.redirect.Origin}, s.redirect.URLs...)
		return fingerprint.Of(fingerprint.Step, parts...)
	}
	return ""
}

type stepWire struct {
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	ID           string    `json:"id,omitempty"`
	CandidateKey string    `json:"candidate_key"`
	Key          string    `json:"key,omitempty"`
	Landing      *Landing  `json:"landing,omitempty"`
	Simple       *Simple   `json:"simple,omitempty"`
	Login        *Login    `json:"login,omitempty"`
	Redirect     *Redirect `json:"redirect,omitempty"`
}

func (s *Step) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(stepWire{
		Kind:         s.kind,
		Status:       s.status,
		ID:           s.id,
		CandidateKey: s.candidateKey,
		Key:          s.key,
		Landing:      s.landing,
		Simple:       s.simple,
		Login:        s.login,
		Redirect:     s.redirect,
	})
}
