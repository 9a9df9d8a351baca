package models

// Credentials identify the service account used to call the completion API.
// They are loaded once at startup and never mutated.
type Credentials struct {
	ServiceAccountID string
	KeyID            string
	PrivateKey       string
	FolderID         string
}
