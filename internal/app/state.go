package app

// AppState is the phase shown by the run view.
type AppState int

const (
	Resolving AppState = iota
	Processing
	Finishing
	Finished
	ShowError
	Exiting
)
