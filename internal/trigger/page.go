package trigger

import "sync"

// Element identifies one control or label on the render page.
type Element string

// Element identifiers bound by the render page.
const (
	ElementRender    Element = "render"
	ElementSuccess   Element = "success"
	ElementFailed    Element = "failed"
	ElementTimer     Element = "timer"
	ElementViewError Element = "viewerror"
	ElementReload    Element = "reload"
	ElementPreset    Element = "preset"
	ElementLogout    Element = "logout"
)

// View is the page surface a Trigger mutates.
type View interface {
	Disabled(el Element) bool
	Disable(el Element)
	Show(el Element)
	SetText(el Element, text string)
	Value(el Element) string
}

// ElementState is a snapshot of one element.
type ElementState struct {
	Text     string
	Value    string
	Hidden   bool
	Disabled bool
}

// Page is an in-memory View holding the render page's elements in their initial state.
type Page struct {
	mu       sync.RWMutex
	elements map[Element]*ElementState
	onChange func()
}

// NewPage returns a Page laid out like the served render page.
func NewPage() *Page {
	return &Page{
		elements: map[Element]*ElementState{
			ElementRender:    {Text: "Render to BlueMap"},
			ElementTimer:     {Hidden: true},
			ElementFailed:    {Hidden: true},
			ElementSuccess:   {Hidden: true},
			ElementViewError: {Text: "View error message", Hidden: true},
			ElementReload:    {Text: "Reload page", Hidden: true},
			ElementPreset:    {},
			ElementLogout:    {Text: "Logout"},
		},
	}
}

// OnChange registers fn to be called after every mutation.
func (p *Page) OnChange(fn func()) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Get returns a copy of the element state.
func (p *Page) Get(el Element) ElementState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if st, ok := p.elements[el]; ok {
		return *st
	}
	return ElementState{}
}

// Disabled implements View.
func (p *Page) Disabled(el Element) bool {
	return p.Get(el).Disabled
}

// Disable implements View.
func (p *Page) Disable(el Element) {
	p.mutate(el, func(st *ElementState) { st.Disabled = true })
}

// Show implements View.
func (p *Page) Show(el Element) {
	p.mutate(el, func(st *ElementState) { st.Hidden = false })
}

// SetText implements View.
func (p *Page) SetText(el Element, text string) {
	p.mutate(el, func(st *ElementState) { st.Text = text })
}

// Value implements View.
func (p *Page) Value(el Element) string {
	return p.Get(el).Value
}

// SetValue sets the value of a value-bearing element such as the preset select.
func (p *Page) SetValue(el Element, value string) {
	p.mutate(el, func(st *ElementState) { st.Value = value })
}

func (p *Page) mutate(el Element, fn func(*ElementState)) {
	p.mu.Lock()
	st, ok := p.elements[el]
	if !ok {
		st = &ElementState{}
		p.elements[el] = st
	}
	fn(st)
	notify := p.onChange
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}
