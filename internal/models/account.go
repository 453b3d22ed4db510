package models

// Account is one managed account, built once at startup and immutable for the
// life of the process.
type Account struct {
	// Key is the stable identifier for the account, derived from the email
	// claim of the decoded credential. All persisted state is keyed by it.
	Key string

	// Credential is the opaque bearer material presented to the login
	// endpoint as the identity-provider assertion.
	Credential string

	// Proxy is the egress proxy URI assigned to this account, empty when
	// proxy mode is disabled.
	Proxy string

	// Index is the account's position in the input file, used for logging.
	Index int
}
