package domain

// ID is an opaque backend identifier.
type ID = string

// UploadPhase is a state of the upload protocol.
type UploadPhase string

const (
	UploadPhaseIdle          UploadPhase = "idle"
	UploadPhaseRequestingURL UploadPhase = "requesting_url"
	UploadPhaseTransferring  UploadPhase = "transferring"
	UploadPhaseConfirming    UploadPhase = "confirming"
	UploadPhaseComplete      UploadPhase = "complete"
	UploadPhaseFailed        UploadPhase = "failed"
)

// UploadSession holds the state of a single upload run. It is owned by that
// run and discarded when it returns.
type UploadSession struct {
	Owner        ID
	ObjectKey    string
	Bucket       string
	DelegatedURL string
	ContentType  string
	SizeBytes    int64
	Memory       ID
}

// UploadedImage is the durable reference produced once an upload is confirmed.
type UploadedImage struct {
	ImageID      ID     `json:"imageId"`
	PermanentURL string `json:"permanentUrl"`
	ObjectKey    string `json:"objectKey"`
}

// UploadURLRequest is the payload of the delegated URL request.
type UploadURLRequest struct {
	User             ID     `json:"user"`
	ImageName        string `json:"imageName"`
	Memory           ID     `json:"memory,omitempty"`
	ContentType      string `json:"contentType,omitempty"`
	ExpiresInSeconds int64  `json:"expiresInSeconds,omitempty"`
}

// UploadURLResponse is the backend's answer to an UploadURLRequest.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	Bucket    string `json:"bucket"`
	Object    string `json:"object"`
}

// ConfirmUploadRequest is the payload of the confirmation call.
type ConfirmUploadRequest struct {
	User        ID     `json:"user"`
	Object      string `json:"object"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Memory      ID     `json:"memory,omitempty"`
}

// ConfirmUploadResponse is the backend's answer to a ConfirmUploadRequest.
type ConfirmUploadResponse struct {
	Image ID     `json:"image"`
	URL   string `json:"url"`
}
