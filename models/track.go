package models

// Track is a catalog item competing in a bracket. Identity is ID.
type Track struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Artists       []string `json:"artists"`
	AlbumName     string   `json:"album_name"`
	AlbumImageURL string   `json:"album_image_url"`
	DurationMs    *int     `json:"duration_ms,omitempty"`
	PreviewURL    *string  `json:"preview_url,omitempty"`
}

// Playlist is a catalog playlist the host can build a game from.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	TrackCount int    `json:"track_count"`
}
