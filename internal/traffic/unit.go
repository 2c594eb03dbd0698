package traffic

// Unit is one intercepted interaction: a request arriving from the program
// under test, or one of the responses produced for it.
type Unit struct {
	Kind    Kind
	Payload string
	// Sequence is the arrival sequence of the top-level request this unit
	// belongs to. Chained responses share their request's sequence.
	Sequence       uint64
	IsResponse     bool
	IsAsynchronous bool
	// Edit is only set on file-edit units.
	Edit *EditTarget
}

// EditTarget describes the filesystem side of a file-edit unit.
type EditTarget struct {
	// Root is the live path the edit applies to.
	Root string
	// Changed lists the paths under Root detected as changed while recording.
	Changed []string
	// Stored is the saved copy to restore from while replaying.
	Stored string
	// Restore is true for replayed edits that must be written back to Root.
	Restore bool
}

// EditStore saves edited files while recording and writes them back while
// replaying. It is implemented by fileedit.Store.
type EditStore interface {
	Save(name, root string, changed []string) error
	Restore(stored, target string) error
}
