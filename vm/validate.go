package vm

// validateFunc lets a lock-held validation helper be passed to memutils.DebugValidate
type validateFunc func() error

func (f validateFunc) Validate() error {
	return f()
}
