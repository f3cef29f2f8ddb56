// Package upload is the publish gateway: YouTube Data API v3 upload with a
// progress callback, plus the credential surface the pipeline needs to
// decide whether publishing is possible at all.
package upload

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Gateway publishes finished videos to YouTube
type Gateway struct {
	cfg *config.Config

	mu           sync.Mutex
	refreshToken string
}

// New creates a Gateway, picking up a stored credential from the token file
// or the environment
func New(cfg *config.Config) *Gateway {
	g := &Gateway{cfg: cfg}
	g.refreshToken = g.loadRefreshToken()
	return g
}

// HasCredential reports whether a publish credential is linked
func (g *Gateway) HasCredential() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshToken != ""
}

// SelectCredential runs the interactive OAuth link flow and stores the
// resulting refresh token
func (g *Gateway) SelectCredential(ctx context.Context) error {
	conf, err := g.oauthConfig()
	if err != nil {
		return err
	}

	url := conf.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("\nOpen this URL to link a YouTube channel:\n\n  %s\n\nPaste the authorization code: ", url)

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read auth code: %w", err)
	}

	token, err := conf.Exchange(ctx, trimNewline(code))
	if err != nil {
		return fmt.Errorf("exchange auth code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("no refresh token granted — revoke access and re-link")
	}

	g.mu.Lock()
	g.refreshToken = token.RefreshToken
	g.mu.Unlock()
	g.saveRefreshToken(token.RefreshToken)
	log.Println("[upload] ✅ YouTube credential linked")
	return nil
}

// ClearCredential drops the stored credential, forcing re-authentication on
// the next publish attempt
func (g *Gateway) ClearCredential() {
	g.mu.Lock()
	g.refreshToken = ""
	g.mu.Unlock()
	_ = os.Remove(g.cfg.Paths.TokenFile)
	log.Println("[upload] Credential cleared — re-link required before publishing")
}

// Upload publishes the finished blob with metadata from the script, sets
// the thumbnail, and reports progress through onProgress (0-100).
func (g *Gateway) Upload(ctx context.Context, videoFile, thumbnailRef string, script *types.Script, onProgress func(percent int)) (string, error) {
	log.Println("[upload] Authenticating with YouTube API...")

	client, err := g.oauthClient(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                script.Title,
			Description:          script.Description,
			Tags:                 script.Tags,
			CategoryId:           g.cfg.Upload.CategoryID,
			DefaultLanguage:      g.cfg.Upload.DefaultLanguage,
			DefaultAudioLanguage: g.cfg.Upload.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           g.cfg.Upload.Visibility,
			SelfDeclaredMadeForKids: g.cfg.Upload.MadeForKids,
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	log.Printf("[upload] Uploading %q (%.1f MB)", script.Title, float64(fi.Size())/1024/1024)

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.Media(f)
	if onProgress != nil {
		size := fi.Size()
		call.ProgressUpdater(func(current, total int64) {
			if size > 0 {
				onProgress(int(current * 100 / size))
			}
		})
	}

	uploaded, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	if onProgress != nil {
		onProgress(100)
	}

	if thumbnailRef != "" {
		if err := g.setThumbnail(ctx, svc, uploaded.Id, thumbnailRef); err != nil {
			log.Printf("[upload] Warning: thumbnail set failed: %v", err)
		}
	}

	log.Printf("[upload] ✅ Uploaded: https://www.youtube.com/watch?v=%s", uploaded.Id)
	return uploaded.Id, nil
}

func (g *Gateway) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, thumbnailRef string) error {
	f, err := os.Open(thumbnailRef)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = svc.Thumbnails.Set(videoID).Media(f, googleapi.ContentType("image/jpeg")).Do()
	return err
}

func (g *Gateway) oauthClient(ctx context.Context) (*http.Client, error) {
	conf, err := g.oauthConfig()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	refresh := g.refreshToken
	g.mu.Unlock()
	if refresh == "" {
		return nil, fmt.Errorf("no publish credential linked")
	}

	token := &oauth2.Token{
		RefreshToken: refresh,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.Client(ctx, token), nil
}

func (g *Gateway) oauthConfig() (*oauth2.Config, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}, nil
}

func (g *Gateway) loadRefreshToken() string {
	if tok := os.Getenv("YOUTUBE_REFRESH_TOKEN"); tok != "" {
		return tok
	}
	data, err := os.ReadFile(g.cfg.Paths.TokenFile)
	if err != nil {
		return ""
	}
	var stored struct {
		RefreshToken string `json:"refresh_token"`
	}
	if json.Unmarshal(data, &stored) != nil {
		return ""
	}
	return stored.RefreshToken
}

func (g *Gateway) saveRefreshToken(tok string) {
	data, _ := json.MarshalIndent(map[string]string{"refresh_token": tok}, "", "  ")
	_ = os.WriteFile(g.cfg.Paths.TokenFile, data, 0600)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
