package model

import "time"

// Photo is an uploaded source image. Filename is the opaque on-disk name;
// Name is the display name exactly as uploaded.
type Photo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`

	// Path is the absolute location of the backing file.
	Path string `json:"-"`
}
