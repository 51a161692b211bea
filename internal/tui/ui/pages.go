package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a stack-based page manager wrapping tview.Pages.
// It provides push/pop semantics and notifies on stack changes.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
	onPop    func(name string)
}

// NewPages creates a new stack-based page manager.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
	}
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// SetOnPop sets a callback that fires for every page leaving the stack.
func (p *Pages) SetOnPop(fn func(name string)) {
	p.onPop = fn
}

// Push adds a page to the top of the stack and shows it. Pushing the page
// already on top is a no-op; pushing one deeper in the stack unwinds to it.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if i := slices.Index(p.stack, name); i >= 0 {
		for len(p.stack) > i+1 {
			p.pop()
		}
		p.show(name)
		p.notify()
		return
	}
	if len(p.stack) > 0 {
		p.HidePage(p.stack[len(p.stack)-1])
	}
	p.stack = append(p.stack, name)
	p.show(name)
	p.notify()
}

// Pop removes the top page and shows the previous one. The root page is
// never popped. Returns the name of the popped page, or empty.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.pop()
	p.show(p.stack[len(p.stack)-1])
	p.notify()
	return top
}

// Current returns the name of the current (top) page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the current page stack.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset clears the stack and shows only the given page.
func (p *Pages) Reset(name string) {
	for len(p.stack) > 0 {
		p.pop()
	}
	p.stack = []string{name}
	p.show(name)
	p.notify()
}

func (p *Pages) pop() string {
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	if p.onPop != nil {
		p.onPop(top)
	}
	return top
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
