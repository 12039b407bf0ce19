package analyzer

// declareImports binds every import of u in its module scope. Each binding is
// a module symbol cross-linked to the imported module's namespace.
func (a *Analyzer) declareImports(u *Unit) {
	for _, b := range u.Imports {
		if b.Decl == nil {
			continue
		}
		name := bindingName(b.Decl)
		if _, err := a.table.DeclareModule(u.Module, name, b.Target, b.Decl.At); err != nil {
			a.reportSymbolError(err, b.Decl.At)
			continue
		}
		log.Debugf("%s: import %q bound as %s -> %s", u.Module, b.Decl.Specifier, name, b.Target)
	}
}
