package models

// HandoffRecord is what the wizard publishes for the results view.
type HandoffRecord struct {
	SelectedAnalyses  FeatureSelection `json:"selectedAnalyses" msgpack:"selectedAnalyses"`
	UploadedFileNames []string         `json:"uploadedFileNames" msgpack:"uploadedFileNames"`
}

// EmptyHandoff is the record read before anything has been written.
func EmptyHandoff() HandoffRecord {
	return HandoffRecord{UploadedFileNames: []string{}}
}
