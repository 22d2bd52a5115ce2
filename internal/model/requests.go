package model

// CreateJobsRequest creates one job per photo id. Masks and CropRects may
// pre-supply manual-stage inputs per photo so those stages run without
// pausing.
type CreateJobsRequest struct {
	PhotoIDs  []string          `json:"photoIds" validate:"required,min=1,dive,required"`
	Steps     []string          `json:"steps"`
	Options   map[string]string `json:"options"`
	Masks     map[string]string `json:"masks"`
	CropRects map[string]string `json:"cropRects"`
}

// SubmitInputRequest carries the human input a waiting job asked for.
type SubmitInputRequest struct {
	Mask     string `json:"mask"`
	CropRect string `json:"cropRect"`
}

type RetryRequest struct {
	Model string `json:"model"`
}

type ReorderRequest struct {
	JobIDs []string `json:"jobIds" validate:"required"`
}

type SettingsRequest struct {
	MaxConcurrent int `json:"maxConcurrent"`
}

type SettingsResponse struct {
	MaxConcurrent      int `json:"maxConcurrent"`
	MaxConcurrentLimit int `json:"maxConcurrentLimit"`
}

type ImportResultRequest struct {
	ResultPath string `json:"resultPath" validate:"required"`
}

type CropPhotoRequest struct {
	CropRect string `json:"cropRect" validate:"required"`
}

// CropBounds is the auto-crop heuristic's answer, in original-pixel
// coordinates.
type CropBounds struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// EnvStatus mirrors the bootstrap collaborator's on-disk state.
type EnvStatus struct {
	AIReady      bool   `json:"aiReady"`
	Device       string `json:"device"`
	SetupRunning bool   `json:"setupRunning"`
	SetupStatus  string `json:"setupStatus"`
	SetupError   string `json:"setupError"`
}
