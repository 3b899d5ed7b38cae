package migrator

// Confirmer asks the operator to confirm an action.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// ConfirmFunc adapts a function into a Confirmer.
type ConfirmFunc func(message string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(message string) (bool, error) {
	return f(message)
}

// AlwaysConfirm is the Confirmer used in non-interactive mode.
var AlwaysConfirm Confirmer = ConfirmFunc(func(string) (bool, error) { return true, nil })
