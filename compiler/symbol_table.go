package compiler

import "sort"

// SymbolKind distinguishes where a symbol's storage lives.
type SymbolKind uint8

const (
	// SymbolLocal lives in the unit-wide local area, addressed by Load and
	// Store.
	SymbolLocal SymbolKind = iota
	// SymbolParam lives in a register of the call frame that declared it,
	// addressed by LoadLocal and StoreLocal.
	SymbolParam
)

func (k SymbolKind) String() string {
	if k == SymbolParam {
		return "param"
	}
	return "local"
}

// Symbol is a resolved name.
type Symbol struct {
	name    string
	slot    uint16
	kind    SymbolKind
	mutable bool
	// frame is the compile-time frame depth the symbol was declared in.
	frame int
}

// Name returns the declared name.
func (s *Symbol) Name() string { return s.name }

// Slot returns the local slot or frame register the symbol is stored in.
func (s *Symbol) Slot() uint16 { return s.slot }

// Kind returns where the symbol is stored.
func (s *Symbol) Kind() SymbolKind { return s.kind }

// Mutable reports whether the symbol may be assigned after declaration.
func (s *Symbol) Mutable() bool { return s.mutable }

// Frame returns the frame depth the symbol was declared in.
func (s *Symbol) Frame() int { return s.frame }

// SymbolTable maps names to symbols for one lexical scope. Tables form a
// chain through their parents; resolution walks the chain innermost first.
type SymbolTable struct {
	parent  *SymbolTable
	symbols map[string]*Symbol
	depth   int
}

// NewSymbolTable creates a root scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: map[string]*Symbol{}}
}

// NewChild creates a nested scope.
func (t *SymbolTable) NewChild() *SymbolTable {
	return &SymbolTable{parent: t, symbols: map[string]*Symbol{}, depth: t.depth + 1}
}

// Parent returns the enclosing scope, or nil for the root.
func (t *SymbolTable) Parent() *SymbolTable {
	return t.parent
}

// Depth returns the nesting depth; the root is 0.
func (t *SymbolTable) Depth() int {
	return t.depth
}

// insert binds s in this scope and returns the symbol it replaced, if any.
func (t *SymbolTable) insert(s *Symbol) *Symbol {
	prev := t.symbols[s.name]
	t.symbols[s.name] = s
	return prev
}

// restore undoes an insert.
func (t *SymbolTable) restore(name string, prev *Symbol) {
	if prev == nil {
		delete(t.symbols, name)
		return
	}
	t.symbols[name] = prev
}

// Get returns the symbol bound in this scope only.
func (t *SymbolTable) Get(name string) (*Symbol, bool) {
	s, ok := t.symbols[name]
	return s, ok
}

// Resolve looks name up through the scope chain, innermost first.
func (t *SymbolTable) Resolve(name string) (*Symbol, bool) {
	for scope := t; scope != nil; scope = scope.parent {
		if s, ok := scope.symbols[name]; ok {
			return s, true
		}
	}
	return nil, false
}

// Names returns every name visible from this scope, sorted.
func (t *SymbolTable) Names() []string {
	seen := map[string]bool{}
	var names []string
	for scope := t; scope != nil; scope = scope.parent {
		for name := range scope.symbols {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
