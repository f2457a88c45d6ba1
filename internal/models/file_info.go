package models

// FileEntry is a file staged in the wizard, identified by a unique token.
type FileEntry struct {
	ID        string `json:"id" msgpack:"id"`
	Name      string `json:"name" msgpack:"name"`
	SizeBytes int64  `json:"sizeBytes" msgpack:"sizeBytes"`
}
