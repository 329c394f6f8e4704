package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Dosada05/track-bracket/models"
)

var (
	ErrUnauthorized     = errors.New("catalog rejected the credential")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrUnavailable      = errors.New("catalog unavailable")
)

const (
	playlistsPageSize = 50
	tracksPageSize    = 100
	maxPages          = 200
)

// Client reads playlists and tracks from a Spotify compatible Web API.
// credential is the user's bearer access token.
type Client interface {
	ListPlaylists(ctx context.Context, credential string) ([]models.Playlist, error)
	ListTracks(ctx context.Context, credential, playlistID string) ([]models.Track, error)
}

type Config struct {
	BaseURL string
	// RateLimit is the request budget per second shared by all callers.
	RateLimit  float64
	Timeout    time.Duration
	HTTPClient *http.Client
}

type spotifyClient struct {
	baseURL    *url.URL
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSpotifyClient(cfg Config, logger *slog.Logger) (Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid catalog base URL %q", cfg.BaseURL)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &spotifyClient{
		baseURL:    base,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type image struct {
	URL string `json:"url"`
}

type playlistPage struct {
	Items []struct {
		ID     string  `json:"id"`
		Name   string  `json:"name"`
		Images []image `json:"images"`
		Tracks struct {
			Total int `json:"total"`
		} `json:"tracks"`
	} `json:"items"`
	Next *string `json:"next"`
}

type spotifyTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string  `json:"name"`
		Images []image `json:"images"`
	} `json:"album"`
	DurationMs *int    `json:"duration_ms"`
	PreviewURL *string `json:"preview_url"`
}

type trackPage struct {
	Items []struct {
		Track *spotifyTrack `json:"track"`
	} `json:"items"`
	Next *string `json:"next"`
}

func (c *spotifyClient) ListPlaylists(ctx context.Context, credential string) ([]models.Playlist, error) {
	first := c.endpoint("me/playlists", playlistsPageSize)

	playlists := make([]models.Playlist, 0)
	err := c.paginate(ctx, credential, first, func(body []byte) (*string, error) {
		var page playlistPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode playlists page: %w", err)
		}
		for _, p := range page.Items {
			if p.ID == "" {
				continue
			}
			playlists = append(playlists, models.Playlist{
				ID:         p.ID,
				Name:       p.Name,
				ImageURL:   firstImage(p.Images),
				TrackCount: p.Tracks.Total,
			})
		}
		return page.Next, nil
	})
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

// ListTracks follows the "next" links until the playlist is exhausted.
// Items without a track (removed or local files) are skipped.
func (c *spotifyClient) ListTracks(ctx context.Context, credential, playlistID string) ([]models.Track, error) {
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, ErrPlaylistNotFound
	}
	first := c.endpoint("playlists/"+url.PathEscape(playlistID)+"/tracks", tracksPageSize)

	tracks := make([]models.Track, 0)
	err := c.paginate(ctx, credential, first, func(body []byte) (*string, error) {
		var page trackPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode tracks page: %w", err)
		}
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, toTrack(item.Track))
		}
		return page.Next, nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

func (c *spotifyClient) endpoint(path string, limit int) string {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = url.Values{"limit": {fmt.Sprint(limit)}}.Encode()
	return u.String()
}

func (c *spotifyClient) paginate(ctx context.Context, credential, next string, handle func([]byte) (*string, error)) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrUnauthorized
	}
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"}),
	)

	for page := 0; next != ""; page++ {
		if page == maxPages {
			return fmt.Errorf("catalog returned more than %d pages", maxPages)
		}
		if err := c.checkSameOrigin(next); err != nil {
			return err
		}
		body, err := c.get(ctx, client, next)
		if err != nil {
			return err
		}
		nextURL, err := handle(body)
		if err != nil {
			return err
		}
		next = ""
		if nextURL != nil {
			next = *nextURL
		}
	}
	return nil
}

// checkSameOrigin keeps pagination on the configured host so a crafted
// "next" link cannot receive the user's token.
func (c *spotifyClient) checkSameOrigin(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid pagination link %q: %w", raw, err)
	}
	if u.Scheme != c.baseURL.Scheme || u.Host != c.baseURL.Host {
		return fmt.Errorf("pagination link %q leaves %s", raw, c.baseURL.Host)
	}
	return nil
}

func (c *spotifyClient) get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPlaylistNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("catalog request failed",
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
			slog.String("retry_after", resp.Header.Get("Retry-After")))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("catalog request failed with status %d", resp.StatusCode)
	}
}

func toTrack(t *spotifyTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return models.Track{
		ID:            t.ID,
		Name:          t.Name,
		Artists:       artists,
		AlbumName:     t.Album.Name,
		AlbumImageURL: firstImage(t.Album.Images),
		DurationMs:    t.DurationMs,
		PreviewURL:    t.PreviewURL,
	}
}

func firstImage(images []image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
