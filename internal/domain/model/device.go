package model

// Device describes the client software and network origin of one connection.
// Persisted on successful identification; belongs to exactly one participant
// for the lifetime of the connection that reported it.
type Device struct {
	Name            string
	OperatingSystem string
	Version         string
	IPAddress       string
}
