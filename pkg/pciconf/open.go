package pciconf

// Open returns a mechanism #1 port backed by the platform's raw port I/O
func Open() (*Mechanism1, error) {
	io, err := OpenPortIO()
	if err != nil {
		return nil, err
	}
	return NewMechanism1(io), nil
}
